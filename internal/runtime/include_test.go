package runtime_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/internal/runtime"
	"github.com/aretw0/xrlt/pkg/adapters/memory"
	"github.com/aretw0/xrlt/pkg/domain"
	"github.com/aretw0/xrlt/pkg/xmljson"
)

func TestIncludeSuccessSeesConvertedNode(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/status": `{"ok": true}`})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/status"><x:success><x:copy-of select="."/></x:success></x:include></r>`, nil)

	root := out.SelectElement("r").SelectElement(xmljson.RootTag)
	require.NotNil(t, root)
	assert.Equal(t, map[string]any{"ok": true}, xmljson.Decode(root))
}

func TestIncludeWithoutSuccessAppendsChildren(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/user": `{"name": "ann", "age": 30}`})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/user"/></r>`, nil)

	r := out.SelectElement("r")
	assert.Equal(t, "ann", r.SelectElement("name").Text())
	assert.Equal(t, "30", r.SelectElement("age").Text())
	assert.Equal(t, xmljson.TypeNumber, r.SelectElement("age").SelectAttrValue(xmljson.TypeAttr, ""))
}

func TestIncludeFailureBranch(t *testing.T) {
	fetcher := memory.NewFetcher(nil)
	out, err := transform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/down">
			<x:success><ok/></x:success>
			<x:failure><err>down</err></x:failure>
		</x:include></r>`, nil)

	require.NoError(t, err)
	r := out.SelectElement("r")
	assert.Nil(t, r.SelectElement("ok"))
	require.NotNil(t, r.SelectElement("err"))
	assert.Equal(t, "down", r.SelectElement("err").Text())
}

func TestIncludeFailureWithoutBranchIsDropped(t *testing.T) {
	out := mustTransform(t, newEngine(), `<r><x:include href="http://api.test/down"/><after/></r>`, nil)
	r := out.SelectElement("r")
	require.Len(t, r.ChildElements(), 1)
	assert.Equal(t, "after", r.ChildElements()[0].Tag)
}

func TestIncludeRejectsNonJSON(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/html": `<html/>`})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/html"><x:failure>bad</x:failure></x:include></r>`, nil)
	assert.Equal(t, "bad", out.SelectElement("r").Text())
}

func TestIncludeUnsupportedType(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/a": `{}`})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/a" type="xml"><x:failure>unsupported</x:failure></x:include></r>`, nil)

	assert.Equal(t, "unsupported", out.SelectElement("r").Text())
	assert.Empty(t, fetcher.Requests())
}

func TestIncludeBuildsRequest(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{
		"http://api.test/users/7?page=2&q=x": `{"name": "ann"}`,
	})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<x:param name="id"/>
		<r><x:include href="http://api.test/users/{$id}">
			<x:with-param name="q" select="'x'"/>
			<x:with-param name="page">2</x:with-param>
		</x:include></r>`, domain.Params{"id": "7"})

	assert.Equal(t, "ann", out.SelectElement("r").SelectElement("name").Text())
	reqs := fetcher.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "http://api.test/users/7", reqs[0].URL)
}

func TestIncludeHeadersAndBody(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/items": `{"id": 1}`})
	out := mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/items">
			<x:with-header name="X-Token" select="'secret'"/>
			<x:with-body>{"name": "new"}</x:with-body>
		</x:include></r>`, nil)

	assert.Equal(t, "1", out.SelectElement("r").SelectElement("id").Text())
	reqs := fetcher.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "secret", reqs[0].Header.Get("X-Token"))
	assert.JSONEq(t, `{"name": "new"}`, reqs[0].Body)
}

func TestIncludeMethodAttribute(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/items/1": `{}`})
	mustTransform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/items/1" method="delete"/></r>`, nil)
	assert.Equal(t, http.MethodDelete, fetcher.Requests()[0].Method)

	_, err := transform(t, newEngine(runtime.WithFetcher(fetcher)), `
		<r><x:include href="http://api.test/items/1" method="teleport"/></r>`, nil)
	var ie *domain.InvalidAttributeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.AttrMethod, ie.Attribute)
}

func TestIncludeRejectsForeignChildren(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:include href="http://api.test/a"><x:if test="true()"/></x:include>`, nil)
	var ce *domain.ContractError
	assert.ErrorAs(t, err, &ce)
}

func TestIncludeBadPlaceholderIsFatal(t *testing.T) {
	_, err := transform(t, newEngine(), `<x:include href="http://api.test/{((}"/>`, nil)
	var ee *domain.ExpressionEvaluationError
	assert.ErrorAs(t, err, &ee)
}

func TestIncludeCache(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/status": `{"ok": true}`})
	cache := memory.NewCache()

	type call struct {
		cached bool
		failed bool
	}
	var calls []call
	e := newEngine(
		runtime.WithFetcher(fetcher),
		runtime.WithResponseCache(cache, time.Minute),
		runtime.WithHooks(domain.Hooks{
			OnInclude: func(_ string, cached bool, _ time.Duration, err error) {
				calls = append(calls, call{cached: cached, failed: err != nil})
			},
		}),
	)

	sheet := `<r><x:include href="http://api.test/status"/></r>`
	for range 2 {
		out := mustTransform(t, e, sheet, nil)
		assert.Equal(t, "true", out.SelectElement("r").SelectElement("ok").Text())
	}

	assert.Len(t, fetcher.Requests(), 1)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, []call{{cached: false}, {cached: true}}, calls)
}

func TestIncludeSkipsCacheWithHeaders(t *testing.T) {
	fetcher := memory.NewFetcher(map[string]string{"http://api.test/me": `{"id": 1}`})
	cache := memory.NewCache()
	e := newEngine(runtime.WithFetcher(fetcher), runtime.WithResponseCache(cache, time.Minute))

	mustTransform(t, e, `<r><x:include href="http://api.test/me"><x:with-header name="Authorization" select="'x'"/></x:include></r>`, nil)
	assert.Equal(t, 0, cache.Len())
}
