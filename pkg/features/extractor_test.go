package features

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	e := NewExtractor(nil)

	tests := []struct {
		name   string
		entity map[string]any
		want   []string
	}{
		{
			name: "full entity",
			entity: map[string]any{
				"category": "Promo",
				"sender":   "deals@Shop.Example.COM",
				"list_id":  "weekly-deals",
				"subject":  "URGENT: Last day of the SALE — unsubscribe anytime",
			},
			want: []string{
				"category:promo",
				"contains:sale",
				"contains:unsubscribe",
				"contains:urgent",
				"list_id:weekly-deals",
				"sender_domain:shop.example.com",
			},
		},
		{
			name: "bare domain sender",
			entity: map[string]any{
				"sender": "billing.example.com",
			},
			want: []string{"sender_domain:billing.example.com"},
		},
		{
			name:   "empty entity",
			entity: map[string]any{},
			want:   nil,
		},
		{
			name: "non-string values ignored",
			entity: map[string]any{
				"category": 42,
				"subject":  true,
				"sender":   "",
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.entity)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor(nil)
	entity := map[string]any{
		"category": "promo",
		"sender":   "a@b.com",
		"list_id":  "l1",
		"subject":  "invoice and receipt",
	}

	first := e.Extract(entity)
	for i := 0; i < 10; i++ {
		if got := e.Extract(entity); !reflect.DeepEqual(got, first) {
			t.Fatalf("extraction not deterministic: %v vs %v", got, first)
		}
	}
}

func TestCustomTokens(t *testing.T) {
	e := NewExtractor([]string{"refund"})
	got := e.Extract(map[string]any{"subject": "Refund processed, no invoice attached"})
	want := []string{"contains:refund"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Extract() = %v, want %v", got, want)
	}
}
