package runtime_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/internal/compiler"
	"github.com/aretw0/xrlt/internal/runtime"
	"github.com/aretw0/xrlt/pkg/adapters/script"
	"github.com/aretw0/xrlt/pkg/adapters/xpath"
	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/registry"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

func newEngine(opts ...runtime.EngineOption) *runtime.Engine {
	scripts := registry.NewRegistry()
	scripts.Register(script.Type, script.New())
	base := []runtime.EngineOption{runtime.WithScripts(scripts)}
	return runtime.NewEngine(xpath.New(), append(base, opts...)...)
}

func transform(t *testing.T, e *runtime.Engine, body string, params domain.Params) (*etree.Element, error) {
	t.Helper()
	doc, err := compiler.NewParser().Parse([]byte(`<x:requestsheet xmlns:x="http://xrlt.net/Transform">` + body + `</x:requestsheet>`))
	require.NoError(t, err)
	return e.Transform(context.Background(), doc, params)
}

func mustTransform(t *testing.T, e *runtime.Engine, body string, params domain.Params) *etree.Element {
	t.Helper()
	out, err := transform(t, e, body, params)
	require.NoError(t, err)
	return out
}

func texts(els []*etree.Element) []string {
	var out []string
	for _, el := range els {
		out = append(out, el.Text())
	}
	return out
}

func TestLiteralAndText(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<page lang="en"><h1>Title</h1><x:text>tail</x:text><p>body</p></page>`, nil)

	page := out.SelectElement("page")
	require.NotNil(t, page)
	assert.Equal(t, "en", page.SelectAttrValue("lang", ""))
	assert.Equal(t, "Title", page.SelectElement("h1").Text())
	assert.Equal(t, "tail", page.SelectElement("h1").Tail())
	assert.Equal(t, "body", page.SelectElement("p").Text())
}

func TestParamFirstWriteWins(t *testing.T) {
	sheet := `
		<x:param name="greeting">default</x:param>
		<x:param name="greeting">second</x:param>
		<out><x:value-of select="$greeting"/></out>`

	out := mustTransform(t, newEngine(), sheet, domain.Params{"greeting": "hello"})
	assert.Equal(t, "hello", out.SelectElement("out").Text())

	out = mustTransform(t, newEngine(), sheet, nil)
	assert.Equal(t, "default", out.SelectElement("out").Text())
}

func TestVariableOverwrites(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:variable name="v">one</x:variable>
		<x:variable name="v">two</x:variable>
		<out><x:value-of select="$v"/></out>`, nil)
	assert.Equal(t, "two", out.SelectElement("out").Text())
}

func TestPushAccumulatesInOrder(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:field name="list">
			<x:push name="item" select="'a'"/>
			<x:push name="other" select="'c'"/>
			<x:push name="item" select="'b'"/>
		</x:field>`, nil)

	list := out.SelectElement("list")
	require.NotNil(t, list)
	assert.Equal(t, []string{"a", "b"}, texts(list.SelectElements("item")))
	assert.Equal(t, []string{"item", "other", "item"}, []string{
		list.ChildElements()[0].Tag, list.ChildElements()[1].Tag, list.ChildElements()[2].Tag,
	})
}

func TestPushReplace(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:field name="list">
			<x:push name="item" select="'a'"/>
			<x:push name="item" select="'b'"/>
			<x:push name="other" select="'c'"/>
			<x:push name="item" replace="yes"><x:text>z</x:text></x:push>
		</x:field>`, nil)

	list := out.SelectElement("list")
	assert.Equal(t, []string{"z"}, texts(list.SelectElements("item")))
	children := list.ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "other", children[0].Tag)
	assert.Equal(t, "item", children[1].Tag)
}

func TestPushOutsideField(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:push name="item" select="'a'"/>`, nil)
	var ce *domain.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Directive, `name="item"`)
}

func TestFieldSeedsParamValue(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="email"/>`, domain.Params{"email": "a@b.c"})
	assert.Equal(t, "a@b.c", out.SelectElement("email").SelectElement("value").Text())
}

func TestFieldMergesScratchContent(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:field name="f">
			<note>hi</note>
			<x:push name="item" select="'a'"/>
		</x:field>`, nil)

	f := out.SelectElement("f")
	require.NotNil(t, f)
	require.NotNil(t, f.SelectElement("note"))
	assert.Equal(t, "hi", f.SelectElement("note").Text())
	assert.Equal(t, "a", f.SelectElement("item").Text())
}

func TestForEachOverNodes(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:variable name="items"><i>1</i><i>2</i><i>3</i></x:variable>
		<r><x:for-each select="$items/i"><v><x:value-of select="."/></v></x:for-each></r>`, nil)

	assert.Equal(t, []string{"1", "2", "3"}, texts(out.SelectElement("r").SelectElements("v")))
}

func TestForEachRejectsScalars(t *testing.T) {
	_, err := transform(t, newEngine(), `<r><x:for-each select="1 + 1"><v/></x:for-each></r>`, nil)
	var ee *domain.ExpressionEvaluationError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, domain.ErrNotNodeSet)
}

func TestIf(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<r><x:if test="1 = 1"><yes/></x:if><x:if test="1 = 2"><no/></x:if></r>`, nil)
	r := out.SelectElement("r")
	assert.NotNil(t, r.SelectElement("yes"))
	assert.Nil(t, r.SelectElement("no"))
}

func TestChoose(t *testing.T) {
	t.Run("first match", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<r><x:choose>
				<x:when test="false()">a</x:when>
				<x:when test="true()">b</x:when>
				<x:when test="true()">c</x:when>
				<x:otherwise>d</x:otherwise>
			</x:choose></r>`, nil)
		assert.Equal(t, "b", out.SelectElement("r").Text())
	})

	t.Run("otherwise", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<r><x:choose><x:when test="false()">a</x:when><x:otherwise>d</x:otherwise></x:choose></r>`, nil)
		assert.Equal(t, "d", out.SelectElement("r").Text())
	})

	t.Run("no match", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<r><x:choose><x:when test="false()">a</x:when></x:choose></r>`, nil)
		assert.Equal(t, "", domain.InnerText(out.SelectElement("r")))
	})

	t.Run("unknown branch", func(t *testing.T) {
		_, err := transform(t, newEngine(), `
			<r><x:choose><x:when test="true()">a</x:when><x:if test="true()"/></x:choose></r>`, nil)
		var ue *domain.UnknownBranchTagError
		require.ErrorAs(t, err, &ue)
	})
}

func TestWhenOutsideChoose(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:when test="true()">a</x:when>`, nil)
	var ce *domain.ContractError
	assert.ErrorAs(t, err, &ce)
}

func TestCopyOfMovesNodes(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:variable name="v"><a>1</a><b>2</b></x:variable>
		<r><x:copy-of select="$v/a"/><x:copy-of select="2 * 3"/></r>`, nil)

	r := out.SelectElement("r")
	require.NotNil(t, r.SelectElement("a"))
	assert.Equal(t, "1", r.SelectElement("a").Text())
	assert.Equal(t, "6", r.SelectElement("a").Tail())
	assert.Nil(t, r.SelectElement("b"))
}

func TestMissingAttribute(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:value-of/>`, nil)
	var me *domain.MissingAttributeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, domain.AttrSelect, me.Attribute)
}

func TestExpressionError(t *testing.T) {
	_, err := transform(t, newEngine(), `<r><x:value-of select="(("/></r>`, nil)
	var ee *domain.ExpressionEvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "((", ee.Expr)
}

func TestSlices(t *testing.T) {
	t.Run("apply before definition", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<r><x:apply name="hello"/></r>
			<x:slice name="hello"><b>hello</b></x:slice>`, nil)
		assert.Equal(t, "hello", out.SelectElement("r").SelectElement("b").Text())
	})

	t.Run("apply block is the context", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:slice name="card"><c><n><x:value-of select="name"/></n><w><x:value-of select="$who"/></w></c></x:slice>
			<r><x:apply name="card"><name>ann</name><x:with-param name="who" select="'me'"/></x:apply></r>`, nil)
		c := out.SelectElement("r").SelectElement("c")
		require.NotNil(t, c)
		assert.Equal(t, "ann", c.SelectElement("n").Text())
		assert.Equal(t, "me", c.SelectElement("w").Text())
	})

	t.Run("form is registered", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:form name="login"><form/></x:form>
			<r><x:apply name="login"/></r>`, nil)
		assert.NotNil(t, out.SelectElement("r").SelectElement("form"))
	})

	t.Run("inline slice", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `<r><x:slice><i/></x:slice></r>`, nil)
		assert.NotNil(t, out.SelectElement("r").SelectElement("i"))
	})

	t.Run("undefined", func(t *testing.T) {
		_, err := transform(t, newEngine(), `<x:apply name="nope"/>`, nil)
		var ue *domain.UndefinedSliceError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "nope", ue.Name)
	})
}

func TestSliceFramesDoNotLeak(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:slice name="s"><x:variable name="v">inner</x:variable><x:value-of select="$v"/></x:slice>
		<x:variable name="v">outer</x:variable>
		<r><a><x:apply name="s"/></a><b><x:value-of select="$v"/></b></r>`, nil)

	r := out.SelectElement("r")
	assert.Equal(t, "inner", r.SelectElement("a").Text())
	assert.Equal(t, "outer", r.SelectElement("b").Text())
}

func TestScriptFieldPushAccumulates(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="f" type="starlark">
push("seen", "x", False)
push("seen", "y", False)
</x:field>`, nil)

	f := out.SelectElement("f")
	require.NotNil(t, f)
	assert.Equal(t, map[string]any{"seen": []any{"x", "y"}}, xmljson.Decode(f))
}

func TestScriptFieldReadsParam(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="f" type="starlark">
value(f.value["value"] + "!")
</x:field>`, domain.Params{"f": "seed"})

	values := out.SelectElement("f").SelectElements("value")
	require.Len(t, values, 1)
	assert.Equal(t, "seed!", values[0].Text())
}

func TestScriptFieldKeepsParamWithoutValue(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="f" type="starlark">push("ok", True)</x:field>`,
		domain.Params{"f": "seed"})

	f := out.SelectElement("f")
	assert.Equal(t, "true", f.SelectElement("ok").Text())
	assert.Equal(t, "seed", f.SelectElement("value").Text())
}

func TestScriptFieldFailureIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	out := mustTransform(t, newEngine(runtime.WithLogger(logger)), `
		<r><x:field name="f" type="starlark">push("a", 1)
fail("boom")</x:field><after/></r>`, domain.Params{"f": "seed"})

	r := out.SelectElement("r")
	f := r.SelectElement("f")
	require.NotNil(t, f)
	require.Len(t, f.ChildElements(), 1)
	assert.Equal(t, "seed", f.SelectElement("value").Text())
	assert.NotNil(t, r.SelectElement("after"))
	assert.Contains(t, buf.String(), "Script field failed")
}

func TestScriptTimeoutIsRecovered(t *testing.T) {
	e := newEngine(runtime.WithScriptTimeout(50 * time.Millisecond))
	out := mustTransform(t, e, `<r><x:field name="f" type="starlark">
while True:
    pass
</x:field></r>`, nil)

	assert.Empty(t, out.SelectElement("r").SelectElement("f").ChildElements())
}

func TestScriptApplyRunsSlice(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:slice name="greet"><x:value-of select="$greeting"/></x:slice>
		<x:field name="f" type="starlark">value(apply("greet", {"greeting": "hi"}))</x:field>`, nil)

	assert.Equal(t, "hi", out.SelectElement("f").SelectElement("value").Text())
}

func TestScriptApplyUndefinedIsFatal(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:field name="f" type="starlark">apply("missing")</x:field>`, nil)
	var ue *domain.UndefinedSliceError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "missing", ue.Name)
}

func TestScriptSlice(t *testing.T) {
	t.Run("apply block reaches scripts", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:slice name="s" type="starlark">return greeting.value + "!"</x:slice>
			<r><x:apply name="s"><x:with-param name="greeting" select="'hey'"/></x:apply></r>`, nil)
		assert.Equal(t, "hey!", out.SelectElement("r").Text())
	})

	t.Run("structured result", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:slice name="s" type="starlark">return {"n": 2, "tags": ["a", "b"]}</x:slice>
			<r><x:apply name="s"/></r>`, nil)
		r := out.SelectElement("r")
		assert.Equal(t, "2", r.SelectElement("n").Text())
		assert.Equal(t, []string{"a", "b"}, texts(r.SelectElements("tags")))
	})

	t.Run("element variables are decoded", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:variable name="user"><name>ann</name></x:variable>
			<x:slice name="s" type="starlark">return user.value["name"]</x:slice>
			<r><x:apply name="s"/></r>`, nil)
		assert.Equal(t, "ann", out.SelectElement("r").Text())
	})

	t.Run("failure produces no output", func(t *testing.T) {
		out := mustTransform(t, newEngine(), `
			<x:slice name="s" type="starlark">return undefined_name</x:slice>
			<r><x:apply name="s"/><after/></r>`, nil)
		r := out.SelectElement("r")
		assert.Equal(t, "", r.Text())
		assert.NotNil(t, r.SelectElement("after"))
	})
}

func TestScriptSliceFlattensNodeSetBindings(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<x:variable name="v"><i>1</i><i>2</i></x:variable>
		<x:slice name="s" type="starlark">return n.value</x:slice>
		<r><x:apply name="s"><x:with-param name="n" select="$v/i"/></x:apply></r>`, nil)

	assert.Equal(t, "1", out.SelectElement("r").Text())
}

func TestScriptFieldPushReplace(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="f" type="starlark">
push("seen", "x")
push("seen", "y")
push("seen", "z", True)
push("kept", "a")
push("kept", "b")
</x:field>`, nil)

	f := out.SelectElement("f")
	assert.Equal(t, []string{"z"}, texts(f.SelectElements("seen")))
	assert.Equal(t, []string{"a", "b"}, texts(f.SelectElements("kept")))
}

func TestScriptHooks(t *testing.T) {
	var names []string
	e := newEngine(runtime.WithHooks(domain.Hooks{
		OnScript: func(name string, _ time.Duration, _ error) { names = append(names, name) },
	}))
	mustTransform(t, e, `<x:field name="a" type="starlark">pass</x:field><x:field name="b" type="starlark">pass</x:field>`, nil)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestUnregisteredScriptTypeIsPlain(t *testing.T) {
	out := mustTransform(t, newEngine(), `<x:field name="f" type="lua">text</x:field>`, nil)
	assert.Equal(t, "text", out.SelectElement("f").Text())
}

func TestLogDirective(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	out := mustTransform(t, newEngine(runtime.WithLogger(logger)), `
		<x:param name="who"/>
		<r><x:log level="warning"><x:text>hello </x:text><x:copy-of select="$who"/></x:log></r>`, domain.Params{"who": "ann"})

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="hello ann"`)
	assert.Equal(t, "", domain.InnerText(out.SelectElement("r")))

	_, err := transform(t, newEngine(), `<x:log level="loud">x</x:log>`, nil)
	var ie *domain.InvalidAttributeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "loud", ie.Value)
}

func run(t *testing.T, e *runtime.Engine, body string, params domain.Params) (*runtime.Result, error) {
	t.Helper()
	doc, err := compiler.NewParser().Parse([]byte(`<x:requestsheet xmlns:x="http://xrlt.net/Transform">` + body + `</x:requestsheet>`))
	require.NoError(t, err)
	return e.Run(context.Background(), doc, params)
}

func TestResponseDirectives(t *testing.T) {
	res, err := run(t, newEngine(), `
		<x:param name="missing">no</x:param>
		<x:response-status>200</x:response-status>
		<x:slice name="notFound"><x:response-status select="400 + 4"/></x:slice>
		<x:if test="$missing = 'yes'"><x:apply name="notFound"/></x:if>
		<page>
			<x:response-header name="cache-control">no-store</x:response-header>
			<x:response-header name="X-Who" select="concat('a', 'b')"/>
			<x:response-header name="X-Who" test="false()">skipped</x:response-header>
			<x:response-status test="$missing = 'no'" select="'404'"/>
		</page>`, nil)
	require.NoError(t, err)

	assert.Equal(t, 404, res.Response.Status)
	assert.Equal(t, []domain.Header{
		{Name: "Cache-Control", Value: "no-store"},
		{Name: "X-Who", Value: "ab"},
	}, res.Response.Headers)
	assert.Empty(t, res.Out.SelectElement("page").ChildElements())
}

func TestResponseDirectiveErrors(t *testing.T) {
	_, err := run(t, newEngine(), `<x:response-status>teapot</x:response-status>`, nil)
	var ie *domain.InvalidAttributeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "teapot", ie.Value)

	_, err = run(t, newEngine(), `<x:response-status select="99"/>`, nil)
	require.ErrorAs(t, err, &ie)

	_, err = run(t, newEngine(), `<x:response-header>x</x:response-header>`, nil)
	var me *domain.MissingAttributeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "name", me.Attribute)
}

func TestUnresolvedImportIsContractError(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:import href="lib.xrl"/>`, nil)
	var ce *domain.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, "top level")
}

type stubApplier struct {
	href  string
	input string
	err   error
}

func (s *stubApplier) Apply(_ context.Context, href string, input *etree.Element) (string, error) {
	s.href = href
	s.input = input.Tag
	return "<b>" + domain.InnerText(input) + "</b>", s.err
}

func TestTransformDirective(t *testing.T) {
	applier := &stubApplier{}
	out := mustTransform(t, newEngine(runtime.WithStylesheetApplier(applier)), `
		<r><x:transform href="page.xsl"><doc>hi</doc></x:transform></r>`, nil)

	assert.Equal(t, "page.xsl", applier.href)
	assert.Equal(t, "doc", applier.input)
	assert.Equal(t, "<b>hi</b>", out.SelectElement("r").Text())
}

func TestTransformErrors(t *testing.T) {
	var te *domain.TransformError

	_, err := transform(t, newEngine(), `<x:transform href="a.xsl"><doc/></x:transform>`, nil)
	require.ErrorAs(t, err, &te)

	e := newEngine(runtime.WithStylesheetApplier(&stubApplier{}))
	_, err = transform(t, e, `<x:transform href="a.xsl">text only</x:transform>`, nil)
	require.ErrorAs(t, err, &te)

	boom := errors.New("boom")
	e = newEngine(runtime.WithStylesheetApplier(&stubApplier{err: boom}))
	_, err = transform(t, e, `<x:transform href="a.xsl"><doc/></x:transform>`, nil)
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "a.xsl", te.Href)
}

func TestTransformHonorsCancellation(t *testing.T) {
	doc, err := compiler.NewParser().Parse([]byte(`<x:requestsheet xmlns:x="http://xrlt.net/Transform"><r/></x:requestsheet>`))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newEngine().Transform(ctx, doc, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLiteralNamespaces(t *testing.T) {
	out := mustTransform(t, newEngine(), `
		<svg xmlns="http://www.w3.org/2000/svg"><g/></svg>
		<page xmlns:x="http://xrlt.net/Transform"><x:text>t</x:text></page>`, nil)

	svg := out.SelectElement("svg")
	require.NotNil(t, svg)
	assert.Equal(t, "http://www.w3.org/2000/svg", svg.SelectAttrValue("xmlns", ""))
	assert.NotNil(t, svg.SelectElement("g"))

	page := out.SelectElement("page")
	require.NotNil(t, page)
	assert.Nil(t, page.SelectAttr("xmlns:x"))
	assert.Equal(t, "t", page.Text())
}
