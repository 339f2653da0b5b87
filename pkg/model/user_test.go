package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUser_JSONKeepsRoleAndEmail(t *testing.T) {
	u := User{ID: "42", Name: "Ana", Email: "ana@alm.io", Role: RoleAdmin}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"email":"ana@alm.io"`) {
		t.Errorf("email missing from %s", data)
	}
	if strings.Contains(string(data), "createdAt") {
		t.Errorf("nil createdAt should be omitted: %s", data)
	}

	var back User
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Email != u.Email || back.Role != RoleAdmin {
		t.Errorf("round trip lost fields: %+v", back)
	}
	if !back.IsAdmin() {
		t.Error("IsAdmin() = false, want true")
	}
}

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	if nilUser.IsAdmin() {
		t.Error("nil user must not be admin")
	}
	if (&User{Role: RoleUser}).IsAdmin() {
		t.Error("user role must not be admin")
	}
}

func TestRegisterRequest_ConfirmationNotSent(t *testing.T) {
	data, err := json.Marshal(RegisterRequest{Name: "Ana", Email: "ana@alm.io", Password: "secret1", ConfirmPassword: "secret1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(data)), "confirm") {
		t.Errorf("confirmation must stay local: %s", data)
	}
	if !strings.Contains(string(data), `"password":"secret1"`) {
		t.Errorf("password missing from %s", data)
	}
}
