package dynamodb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Region != "us-east-1" {
		t.Errorf("Region = %s", cfg.Region)
	}
	if cfg.VariablesTableName != "parley_variables" {
		t.Errorf("VariablesTableName = %s", cfg.VariablesTableName)
	}
	if cfg.QueryTimeout <= 0 {
		t.Error("QueryTimeout must default to a positive value")
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	for _, opt := range []ConfigOption{
		WithRegion("eu-central-1"),
		WithEndpoint("http://localhost:8000"),
		WithQueryTimeout(5 * time.Second),
		WithVariablesTableName("vars"),
	} {
		opt(&cfg)
	}

	if cfg.Region != "eu-central-1" || cfg.Endpoint != "http://localhost:8000" {
		t.Errorf("connection config not applied: %+v", cfg)
	}
	if cfg.VariablesTableName != "vars" || cfg.QueryTimeout != 5*time.Second {
		t.Errorf("table config not applied: %+v", cfg)
	}
}

func TestVariableStore_Key(t *testing.T) {
	t.Parallel()

	s := &VariableStore{}
	key := s.key("c1", "balance")

	scope, ok := key["scope_key"].(*types.AttributeValueMemberS)
	if !ok || scope.Value != "c1" {
		t.Errorf("scope_key = %+v", key["scope_key"])
	}
	name, ok := key["name"].(*types.AttributeValueMemberS)
	if !ok || name.Value != "balance" {
		t.Errorf("name = %+v", key["name"])
	}
}

func TestVariableStore_ItemRoundtrip(t *testing.T) {
	t.Parallel()

	s := &VariableStore{}
	now := time.Now().UTC().Truncate(time.Millisecond)

	item := variableItem{
		ScopeKey:      "c1",
		Name:          "balance",
		Data:          json.RawMessage(`"17.20"`),
		LastRefreshed: now.Format(time.RFC3339Nano),
	}

	v, err := s.fromItem(item)
	if err != nil {
		t.Fatalf("fromItem() error = %v", err)
	}
	if v.Name != "balance" || v.ScopeKey != "c1" {
		t.Errorf("identity fields lost: %+v", v)
	}
	if !v.LastRefreshed.Equal(now) {
		t.Errorf("LastRefreshed = %v, want %v", v.LastRefreshed, now)
	}
	if string(v.Data) != `"17.20"` {
		t.Errorf("Data = %s", v.Data)
	}
}

func TestVariableStore_FromItemRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	s := &VariableStore{}
	if _, err := s.fromItem(variableItem{Name: "x", LastRefreshed: "not-a-time"}); err == nil {
		t.Error("fromItem() accepted malformed timestamp")
	}
}
