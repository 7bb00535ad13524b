package api

import (
	"context"
	"testing"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		method      string
		operationID string
	}{
		{"спецификация", "/openapi.json", "GET", "getOpenAPISpec"},
		{"учётные данные GET", "/waterbutler/auth", "GET", "getCredentials"},
		{"учётные данные POST", "/waterbutler/auth", "POST", "postCredentials"},
		{"отчёт об операции", "/resources/{nid}/waterbutler/logs", "POST", "recordOperation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := doc.Paths.Value(tt.path)
			if item == nil {
				t.Fatalf("путь %s отсутствует", tt.path)
			}
			op := item.GetOperation(tt.method)
			if op == nil || op.OperationID != tt.operationID {
				t.Errorf("операция %s %s = %+v, хотели %s", tt.method, tt.path, op, tt.operationID)
			}
		})
	}

	if len(doc.Servers) != 1 || doc.Servers[0].URL != "/api/v1" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}
