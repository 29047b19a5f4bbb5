package llm

import "chat-relay-go/internal/model"

// Project maps stored turns onto the backend's {role, content:[{text}]} shape.
// Image blocks that carry a source pass through untouched; blank text and any
// other block without a text field are dropped. Turns left with no content are
// omitted, and adjacent messages of the same role are merged so the roles in
// the request always alternate.
func Project(turns []model.Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		parts := make([]Part, 0, len(t.Content))
		for _, b := range t.Content {
			switch {
			case b.HasText():
				if *b.Text != "" {
					parts = append(parts, Part{Text: *b.Text})
				}
			case b.IsImage():
				parts = append(parts, Part{Image: &Image{MediaType: b.Source.MediaType, Data: b.Source.Data}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == string(t.Role) {
			out[n-1].Content = append(out[n-1].Content, parts...)
			continue
		}
		out = append(out, Message{Role: string(t.Role), Content: parts})
	}
	return out
}
