package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/xrlt/internal/compiler"
	"github.com/aretw0/xrlt/pkg/domain"
)

func parse(t *testing.T, body string) error {
	t.Helper()
	doc, err := compiler.NewParser().Parse([]byte(`<x:requestsheet xmlns:x="http://xrlt.net/Transform">` + body + `</x:requestsheet>`))
	require.NoError(t, err)
	return ValidateSheet(doc)
}

func TestValidateSheet(t *testing.T) {
	// 1. Valid sheet
	err := parse(t, `
		<x:param name="id">1</x:param>
		<page>
			<x:apply name="card"/>
			<x:include href="http://api.test/{$id}" method="post">
				<x:with-header name="Accept">application/json</x:with-header>
				<x:success><x:copy-of select="."/></x:success>
				<x:failure><error/></x:failure>
			</x:include>
			<x:field name="f"><x:push name="f">1</x:push></x:field>
			<x:choose>
				<x:when test="$id = 1">one</x:when>
				<x:otherwise>other</x:otherwise>
			</x:choose>
			<x:log level="debug">done</x:log>
		</page>
		<x:slice name="card"><x:push name="f">2</x:push></x:slice>`)
	assert.NoError(t, err)

	// 2. Every problem is reported
	err = parse(t, `
		<x:value-of/>
		<x:apply name="ghost"/>
		<x:when test="1"/>
		<x:choose><x:if test="1"/></x:choose>
		<x:push name="f"/>
		<x:success/>
		<x:include href="http://api.test" method="teleport" type="yaml"><p/></x:include>
		<x:log level="loud"/>`)
	require.Error(t, err)

	var report *Report
	require.True(t, errors.As(err, &report))
	assert.Len(t, report.Errors, 10)
	assert.Contains(t, err.Error(), "found 10 errors")

	var missing *domain.MissingAttributeError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "select", missing.Attribute)

	var undefined *domain.UndefinedSliceError
	require.True(t, errors.As(err, &undefined))
	assert.Equal(t, "ghost", undefined.Name)

	var branch *domain.UnknownBranchTagError
	require.True(t, errors.As(err, &branch))
	assert.Equal(t, "x:if", branch.Tag)
}

func TestValidateSheetFormsCountAsSlices(t *testing.T) {
	assert.NoError(t, parse(t, `<x:form name="login"/><x:apply name="login"/>`))
}

func TestValidateSheetImportsAndResponses(t *testing.T) {
	assert.NoError(t, parse(t, `
		<x:import href="lib.xrl"/>
		<x:response-status>404</x:response-status>
		<x:response-status select="$code"/>
		<x:response-header name="Cache-Control">no-store</x:response-header>`))

	err := parse(t, `
		<x:import/>
		<page><x:import href="lib.xrl"/></page>
		<x:response-status>teapot</x:response-status>
		<x:response-status>999</x:response-status>
		<x:response-header>x</x:response-header>`)
	var report *Report
	require.True(t, errors.As(err, &report))
	assert.Len(t, report.Errors, 5)
	assert.Contains(t, err.Error(), "not at the top level")
	assert.Contains(t, err.Error(), `invalid value "teapot"`)
	assert.Contains(t, err.Error(), `invalid value "999"`)
}
