package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const testForm = `<html><body>
<form method="post" action="./animalviewreport.aspx?AnimalID=12345678" id="aspnetForm">
	<input type="hidden" name="__VIEWSTATE" value="dDwtMTA4" />
	<input type="text" name="ctl00$cphSearchArea$txtUserName" value="" />
	<input type="password" name="ctl00$cphSearchArea$txtPassword" />
	<input type="checkbox" name="remember" />
	<input type="checkbox" name="agree" checked />
	<input type="submit" name="ctl00$cphSearchArea$btnPostBackButton" value="Go" />
	<select name="species"><option value="dog">Dog</option><option value="cat" selected>Cat</option></select>
	<textarea name="memo">hello</textarea>
</form>
</body></html>`

func TestParseForm(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testForm))
	require.NoError(t, err)

	form := ParseForm(doc.Find("form").First())
	require.Equal(t, "POST", form.Method)
	require.Equal(t, "dDwtMTA4", form.Values.Get("__VIEWSTATE"))
	require.Equal(t, "", form.Values.Get("ctl00$cphSearchArea$txtUserName"))
	require.True(t, form.Values.Has("ctl00$cphSearchArea$txtPassword"))
	require.False(t, form.Values.Has("remember"))
	require.Equal(t, "on", form.Values.Get("agree"))
	require.Equal(t, "cat", form.Values.Get("species"))
	require.Equal(t, "hello", form.Values.Get("memo"))
	require.False(t, form.Values.Has("ctl00$cphSearchArea$btnPostBackButton"))
	require.True(t, form.HasSubmit("ctl00$cphSearchArea$btnPostBackButton"))

	clicked, err := form.Submit("ctl00$cphSearchArea$btnPostBackButton")
	require.NoError(t, err)
	require.Equal(t, "Go", clicked.Get("ctl00$cphSearchArea$btnPostBackButton"))
	require.Equal(t, "dDwtMTA4", clicked.Get("__VIEWSTATE"))
	require.False(t, form.Values.Has("ctl00$cphSearchArea$btnPostBackButton"))

	first, err := form.Submit("")
	require.NoError(t, err)
	require.Equal(t, "Go", first.Get("ctl00$cphSearchArea$btnPostBackButton"))

	_, err = form.Submit("missing")
	require.Error(t, err)

	page, err := url.Parse("http://sms.example.com/sms3/embeddedreports/animalviewreport.aspx?AnimalID=000000000")
	require.NoError(t, err)
	action, err := form.ResolveAction(page)
	require.NoError(t, err)
	require.Equal(t, "http://sms.example.com/sms3/embeddedreports/animalviewreport.aspx?AnimalID=12345678", action.String())
}

func TestNormalizeText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "  Parvo   Ward \n", expected: "Parvo Ward"},
		{input: " Male ", expected: "Male"},
		{input: "", expected: ""},
	}
	for _, row := range table {
		require.Equal(t, row.expected, NormalizeText(row.input))
	}
}
