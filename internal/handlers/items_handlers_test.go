package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/wishlane/backend/internal/models"
)

func TestItemCRUD(t *testing.T) {
	env := setupTestEnv(t)
	_, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	_, bobToken := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")

	var itemID string

	t.Run("create with defaults", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/items/", map[string]any{
			"name":       "Espresso machine",
			"priceCents": 45000,
			"url":        "https://example.com/espresso",
		}, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusCreated)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		itemID, _ = data["id"].(string)
		if data["priority"] != float64(3) {
			t.Fatalf("expected default priority 3, got %v", data["priority"])
		}
		if data["status"] != "active" {
			t.Fatalf("expected default status active, got %v", data["status"])
		}
	})

	t.Run("validation", func(t *testing.T) {
		cases := []struct {
			name    string
			payload map[string]any
		}{
			{"empty name", map[string]any{"name": "  "}},
			{"negative price", map[string]any{"name": "X", "priceCents": -1}},
			{"priority out of range", map[string]any{"name": "X", "priority": 6}},
			{"bad status", map[string]any{"name": "X", "status": "wished"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				resp := performJSONRequest(t, env.app, http.MethodPost, "/api/items/", tc.payload, authHeaders(aliceToken))
				assertStatus(t, resp, http.StatusBadRequest)
			})
		}
	})

	t.Run("other users cannot see or touch the item", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/items/"+itemID, nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusNotFound)

		resp = performJSONRequest(t, env.app, http.MethodPut, "/api/items/"+itemID, map[string]any{
			"name": "hijacked",
		}, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusNotFound)

		resp = performJSONRequest(t, env.app, http.MethodDelete, "/api/items/"+itemID, nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("update", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/items/"+itemID, map[string]any{
			"name":     "Espresso machine deluxe",
			"priority": 1,
			"status":   "received",
		}, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		if data["status"] != "received" {
			t.Fatalf("expected status received, got %v", data["status"])
		}
	})

	t.Run("list filters by status", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/items/?status=received", nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 received item, got %d", len(data))
		}
	})

	t.Run("delete", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/items/"+itemID, nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusNoContent)

		resp = performJSONRequest(t, env.app, http.MethodGet, "/api/items/"+itemID, nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestItemOwnerNeverSeesClaims(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	bob, _ := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")

	group := createTestGroup(t, env.db, alice, "Family")
	addTestMember(t, env.db, group, bob, models.GroupRoleMember)

	item := createTestItem(t, env.db, alice, "Kindle", int64Ptr(12000))
	shareTestItem(t, env.db, item, group)

	claim := &models.Claim{
		ItemID:    item.ID,
		UserID:    bob.ID,
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 30),
	}
	if err := env.db.Create(claim).Error; err != nil {
		t.Fatalf("failed seeding claim: %v", err)
	}

	t.Run("item detail carries no claim data", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/items/"+item.ID.String(), nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		if _, present := data["claims"]; present {
			t.Fatal("owner response must not contain claims")
		}
		if _, present := data["claimableAmount"]; present {
			t.Fatal("owner response must not contain the claimable amount")
		}
	})

	t.Run("item list carries no claim data", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/items/", nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		items, _ := body["data"].([]any)
		for _, raw := range items {
			entry, _ := raw.(map[string]any)
			if _, present := entry["claims"]; present {
				t.Fatal("owner list must not contain claims")
			}
		}
	})

	t.Run("owner cannot fetch own item through the shared view", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/shared-items/"+item.ID.String(), nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}
