package qajson

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"qagen/pkg/contract"
)

func TestDecodeWrapped(t *testing.T) {
	d, _ := New(nil)
	raw := contract.Raw{Text: "Sure! Here you go:\n```json\n[\n {\"text_input\": \"Q1\", \"output\": \"A1\"},\n {\"text_input\": \"Q2\", \"output\": \"A2\"}\n]\n```\nHope it helps."}
	got, err := d.Decode(context.Background(), raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].TextInput != "Q1" || got[1].Output != "A2" {
		t.Fatalf("unexpected %#v", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	d, _ := New(nil)
	cases := []struct {
		name string
		text string
		want error
	}{
		{"无数组", "I cannot help with that", contract.ErrNoJSONArray},
		{"只有左括号", "[ {\"text_input\": \"x\"", contract.ErrNoJSONArray},
		{"非法 JSON", "[not json]", contract.ErrResponseInvalid},
		{"空数组", "[]", contract.ErrResponseInvalid},
		{"非对象数组", "[1, 2]", contract.ErrResponseInvalid},
		{"null 条目", "Sure: [null]", contract.ErrResponseInvalid},
		{"混有 null", `[{"text_input":"q","output":"a"}, null]`, contract.ErrResponseInvalid},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(context.Background(), contract.Raw{Text: tt.text})
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v got %v", tt.want, err)
			}
		})
	}
}

// 答案中含 ']' 时最短匹配会截断，需回退到括号配对。
func TestExtractArrayBracketInString(t *testing.T) {
	text := `Result: [{"text_input": "What is [X]?", "output": "X is a drug [brand]."}] end`
	got, err := ExtractArray(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 1 || got[0].TextInput != "What is [X]?" || got[0].Output != "X is a drug [brand]." {
		t.Fatalf("unexpected %#v", got)
	}
}

func TestDecodeStrict(t *testing.T) {
	d, err := New(json.RawMessage(`{"strict":true}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = d.Decode(context.Background(), contract.Raw{Text: `[{"text_input":"q","output":" "}]`})
	if !errors.Is(err, contract.ErrResponseInvalid) {
		t.Fatalf("strict 应拒绝缺字段条目: %v", err)
	}
	loose, _ := New(nil)
	got, err := loose.Decode(context.Background(), contract.Raw{Text: `[{"text_input":"q"}]`})
	if err != nil || len(got) != 1 {
		t.Fatalf("宽松模式应接受: %v %#v", err, got)
	}
	if _, err := New(json.RawMessage(`{"strict":"x"}`)); err == nil {
		t.Fatalf("非法选项应失败")
	}
}

func TestDecodeCanceled(t *testing.T) {
	d, _ := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Decode(ctx, contract.Raw{Text: "[]"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled got %v", err)
	}
}
