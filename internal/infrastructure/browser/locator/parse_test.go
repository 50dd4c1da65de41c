package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []Step
	}{
		{
			name:    "role with name",
			command: `get_by_role("button", name="Submit")`,
			want:    []Step{{Kind: KindRole, Value: "button", Name: "Submit"}},
		},
		{
			name:    "page prefix and single quotes",
			command: `page.get_by_label('Email', exact=True)`,
			want:    []Step{{Kind: KindLabel, Value: "Email", Exact: true}},
		},
		{
			name:    "chain with nth",
			command: `locator("#results").get_by_text("Download").nth(2)`,
			want: []Step{
				{Kind: KindCSS, Value: "#results"},
				{Kind: KindText, Value: "Download"},
				{Kind: KindNth, Index: 2},
			},
		},
		{
			name:    "first and last",
			command: `get_by_role("row").first.get_by_role("cell").last`,
			want: []Step{
				{Kind: KindRole, Value: "row"},
				{Kind: KindNth, Index: 0},
				{Kind: KindRole, Value: "cell"},
				{Kind: KindNth, Index: -1},
			},
		},
		{
			name:    "filter",
			command: `get_by_role("listitem").filter(has_text="Apple")`,
			want:    []Step{{Kind: KindRole, Value: "listitem"}, {Kind: KindFilter, HasText: "Apple"}},
		},
		{
			name:    "escaped quote",
			command: `get_by_text("Say \"hi\"")`,
			want:    []Step{{Kind: KindText, Value: `Say "hi"`}},
		},
		{
			name:    "xpath inside locator",
			command: `locator("xpath=//div[@id='a']")`,
			want:    []Step{{Kind: KindXPath, Value: "//div[@id='a']"}},
		},
		{
			name:    "bare css",
			command: `#login > button.primary`,
			want:    []Step{{Kind: KindCSS, Value: "#login > button.primary"}},
		},
		{
			name:    "bare xpath",
			command: `//input[@name="q"]`,
			want:    []Step{{Kind: KindXPath, Value: `//input[@name="q"]`}},
		},
		{
			name:    "content frame",
			command: `locator('#new-login-iframe').content_frame.get_by_role('textbox', name='User ID *')`,
			want: []Step{
				{Kind: KindCSS, Value: "#new-login-iframe"},
				{Kind: KindFrame},
				{Kind: KindRole, Value: "textbox", Name: "User ID *"},
			},
		},
		{
			name:    "content frame then button",
			command: `locator('#new-login-iframe').content_frame.get_by_role('button', name='Login')`,
			want: []Step{
				{Kind: KindCSS, Value: "#new-login-iframe"},
				{Kind: KindFrame},
				{Kind: KindRole, Value: "button", Name: "Login"},
			},
		},
		{
			name:    "frame locator",
			command: `frame_locator("iframe[name=pay]").get_by_label("Card number")`,
			want: []Step{
				{Kind: KindCSS, Value: "iframe[name=pay]"},
				{Kind: KindFrame},
				{Kind: KindLabel, Value: "Card number"},
			},
		},
		{
			name:    "label then role",
			command: `get_by_label("Search").get_by_role("button", name="Go")`,
			want:    []Step{{Kind: KindLabel, Value: "Search"}, {Kind: KindRole, Value: "button", Name: "Go"}},
		},
		{
			name:    "test id",
			command: `get_by_test_id("checkout")`,
			want:    []Step{{Kind: KindTestID, Value: "checkout"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Parse(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Steps)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, command := range []string{
		"",
		`get_by_role("button"`,
		`get_by_role("button").click()`,
		`get_by_text("a", "b")`,
		`get_by_text("unterminated)`,
		`get_by_role("row").nth(x)`,
		`get_by_role("row").filter(has="x")`,
		`frame_locator("a", "b")`,
		`locator("#f").content_frame(1)`,
	} {
		_, err := Parse(command)
		assert.Error(t, err, command)
	}
}
