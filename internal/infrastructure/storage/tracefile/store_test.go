package tracefile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"optexity/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clickNode(command string) *entity.ActionNode {
	node := &entity.ActionNode{InteractionAction: &entity.InteractionAction{
		ClickElement: &entity.ClickElementAction{LocatorAction: entity.LocatorAction{Command: command}},
	}}
	if err := node.Validate(); err != nil {
		panic(err)
	}
	return node
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	store := New()

	mem := entity.NewMemory(map[string][]string{"user": {"alice"}})
	mem.AppendBrowserState("https://example.com")
	mem.AutomationState.StepIndex = 1
	mem.SetGenerated("otp", []string{"123456"})
	mem.RecordDownload("/tmp/report.csv")

	executed := []*entity.ActionNode{clickNode("locator('#a')"), clickNode("locator('#b')")}
	require.NoError(t, store.Save(context.Background(), dir, executed, mem))

	nodes, loaded, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "locator('#b')", nodes[1].InteractionAction.ClickElement.Command)
	assert.Equal(t, []string{"alice"}, loaded.Variables.InputVariables["user"])
	assert.Equal(t, []string{"123456"}, loaded.Variables.GeneratedVariables["otp"])
	assert.Equal(t, 1, loaded.AutomationState.StepIndex)
	assert.Equal(t, []string{"/tmp/report.csv"}, loaded.DownloadPaths())
	assert.Equal(t, "https://example.com", loaded.BrowserStates[0].URL)
}

func TestStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := New()
	mem := entity.NewMemory(nil)

	require.NoError(t, store.Save(context.Background(), dir, []*entity.ActionNode{clickNode("a")}, mem))
	require.NoError(t, store.Save(context.Background(), dir, []*entity.ActionNode{clickNode("a"), clickNode("b")}, mem))

	nodes, _, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().Save(ctx, t.TempDir(), nil, entity.NewMemory(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
