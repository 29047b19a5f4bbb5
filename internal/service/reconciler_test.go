package service

import (
	"testing"

	"chat-relay-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(turns []model.Turn) [][]string {
	out := make([][]string, 0, len(turns))
	for _, t := range turns {
		var row []string
		for _, b := range t.Content {
			if b.HasText() {
				row = append(row, string(t.Role)+":"+*b.Text)
			} else {
				row = append(row, string(t.Role)+":<"+b.Type+">")
			}
		}
		out = append(out, row)
	}
	return out
}

func flatten(turns []model.Turn) []model.ContentBlock {
	var blocks []model.ContentBlock
	for _, t := range turns {
		blocks = append(blocks, t.Content...)
	}
	return blocks
}

func TestCollapse(t *testing.T) {
	img := model.ContentBlock{Type: model.BlockTypeImage, Source: &model.ImageSource{Type: "base64", MediaType: "image/png", Data: "eA=="}}

	tests := []struct {
		name  string
		turns []model.Turn
		want  [][]string
	}{
		{"empty", nil, [][]string{}},
		{"alternating untouched", []model.Turn{
			model.NewTextTurn(model.RoleUser, "a"),
			model.NewTextTurn(model.RoleAssistant, "b"),
			model.NewTextTurn(model.RoleUser, "c"),
		}, [][]string{{"user:a"}, {"assistant:b"}, {"user:c"}}},
		{"pending user draft merged", []model.Turn{
			model.NewTextTurn(model.RoleAssistant, "hi"),
			{Role: model.RoleUser, Content: []model.ContentBlock{img, model.NewTextBlock("draft")}},
			model.NewTextTurn(model.RoleUser, "final"),
			model.NewTextTurn(model.RoleUser, "and more"),
		}, [][]string{{"assistant:hi"}, {"user:<image>", "user:draft", "user:final", "user:and more"}}},
		{"system runs merged too", []model.Turn{
			model.NewTextTurn(model.RoleSystem, "s1"),
			model.NewTextTurn(model.RoleSystem, "s2"),
			model.NewTextTurn(model.RoleUser, "u"),
		}, [][]string{{"system:s1", "system:s2"}, {"user:u"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Collapse(tc.turns)
			assert.Equal(t, tc.want, texts(got))

			// 幂等
			assert.Equal(t, got, Collapse(got))
			// 内容块的顺序与数量保持不变
			assert.Equal(t, flatten(tc.turns), flatten(got))
			// 相邻消息角色必然不同
			for i := 1; i < len(got); i++ {
				assert.NotEqual(t, got[i-1].Role, got[i].Role)
			}
		})
	}
}

func TestCollapse_DoesNotMutateInput(t *testing.T) {
	in := []model.Turn{
		model.NewTextTurn(model.RoleUser, "a"),
		model.NewTextTurn(model.RoleUser, "b"),
	}
	_ = Collapse(in)

	require.Len(t, in, 2)
	assert.Len(t, in[0].Content, 1)
	assert.Len(t, in[1].Content, 1)
}

func TestReconcile(t *testing.T) {
	prior := []model.Turn{
		model.NewTextTurn(model.RoleUser, "draft"),
		model.NewTextTurn(model.RoleUser, "hi"),
	}

	got := Reconcile(prior, "hello")

	assert.Equal(t, [][]string{{"user:draft", "user:hi"}, {"assistant:hello"}}, texts(got))
	assert.Equal(t, model.BlockTypeText, got[1].Content[0].Type)
	assert.Len(t, prior, 2)
}
