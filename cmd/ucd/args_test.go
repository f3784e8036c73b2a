package main

import (
	"reflect"
	"testing"
)

func TestParseActionArgs(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"integer", []string{"value=35"}, map[string]any{"value": 35}, false},
		{"float", []string{"value=0.5"}, map[string]any{"value": 0.5}, false},
		{"bool", []string{"enabled=true"}, map[string]any{"enabled": true}, false},
		{"string", []string{"scale=portraitPrim"}, map[string]any{"scale": "portraitPrim"}, false},
		{"quoted number stays string", []string{`id="42"`}, map[string]any{"id": "42"}, false},
		{"url with equals", []string{"url=https://example.com/?a=b"}, map[string]any{"url": "https://example.com/?a=b"}, false},
		{"empty value", []string{"url="}, map[string]any{"url": ""}, false},
		{"json object", []string{`opts={"a":1}`}, map[string]any{"opts": map[string]any{"a": float64(1)}}, false},
		{"several", []string{"mode=web", "value=3"}, map[string]any{"mode": "web", "value": 3}, false},
		{"missing equals", []string{"value"}, nil, true},
		{"missing key", []string{"=3"}, nil, true},
		{"bad json", []string{"opts={nope"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseActionArgs(tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseActionArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseActionArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
