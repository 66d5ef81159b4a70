package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/wishlane/backend/internal/models"
)

func inviteToken(t *testing.T, env *testEnv, email string) string {
	t.Helper()

	var invitation models.Invitation
	err := env.db.Where("invitee_email = ? AND status = ?", email, models.InvitationStatusPending).
		Order("created_at DESC").First(&invitation).Error
	if err != nil {
		t.Fatalf("failed loading invitation for %s: %v", email, err)
	}
	return invitation.Token
}

func TestInvitationFlow(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	bob, bobToken := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")
	_, carolToken := createTestUser(t, env.db, "carol@test.com", "password123", "Carol")

	group := createTestGroup(t, env.db, alice, "Family")

	invitePath := "/api/groups/" + group.ID.String() + "/invitations"

	t.Run("owner invites", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "bob@test.com",
		}, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusCreated)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].(map[string]any)
		if data["status"] != "pending" {
			t.Fatalf("expected pending status, got %v", data["status"])
		}
		if _, exposed := data["token"]; exposed {
			t.Fatal("the invitation token must not appear in responses")
		}

		// An existing user gets an in-app notification.
		if got := countNotifications(t, env, bob.ID, models.NotificationInviteReceived); got != 1 {
			t.Fatalf("expected 1 invite notification for bob, got %d", got)
		}
	})

	t.Run("duplicate pending invite conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "bob@test.com",
		}, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("non-member cannot invite", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "dave@test.com",
		}, authHeaders(carolToken))
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("invitee sees the invitation", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodGet, "/api/invitations/", nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusOK)

		body := decodeJSONMap(t, resp)
		data, _ := body["data"].([]any)
		if len(data) != 1 {
			t.Fatalf("expected 1 pending invitation, got %d", len(data))
		}
	})

	t.Run("wrong email cannot accept", func(t *testing.T) {
		token := inviteToken(t, env, "bob@test.com")
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", nil, authHeaders(carolToken))
		assertStatus(t, resp, http.StatusForbidden)
	})

	t.Run("accept joins the group with the invited role", func(t *testing.T) {
		token := inviteToken(t, env, "bob@test.com")
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusOK)

		var membership models.GroupMembership
		if err := env.db.First(&membership, "group_id = ? AND user_id = ?", group.ID, bob.ID).Error; err != nil {
			t.Fatalf("expected membership after accept: %v", err)
		}
		if membership.Role != models.GroupRoleMember {
			t.Fatalf("expected member role, got %s", membership.Role)
		}

		if got := countNotifications(t, env, alice.ID, models.NotificationInviteAccepted); got != 1 {
			t.Fatalf("expected the inviter to be notified, got %d", got)
		}

		// The accepted token cannot be replayed.
		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("inviting an existing member conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "bob@test.com",
		}, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusConflict)
	})

	t.Run("admins can only invite members", func(t *testing.T) {
		if err := env.db.Model(&models.GroupMembership{}).
			Where("group_id = ? AND user_id = ?", group.ID, bob.ID).
			Update("role", models.GroupRoleAdmin).Error; err != nil {
			t.Fatalf("failed promoting bob: %v", err)
		}

		resp := performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "carol@test.com",
			"role":  "admin",
		}, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusForbidden)

		resp = performJSONRequest(t, env.app, http.MethodPost, invitePath, map[string]any{
			"email": "carol@test.com",
		}, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusCreated)
	})
}

func TestInvitationDecline(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	_, bobToken := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")

	group := createTestGroup(t, env.db, alice, "Family")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/invitations", map[string]any{
		"email": "bob@test.com",
	}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusCreated)

	token := inviteToken(t, env, "bob@test.com")

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/decline", nil, authHeaders(bobToken))
	assertStatus(t, resp, http.StatusOK)

	if got := countNotifications(t, env, alice.ID, models.NotificationInviteDeclined); got != 1 {
		t.Fatalf("expected the inviter to hear about the decline, got %d", got)
	}

	t.Run("declining twice conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/decline", nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusConflict)
	})
}

func TestInvitationExpiry(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	_, bobToken := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")

	group := createTestGroup(t, env.db, alice, "Family")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/invitations", map[string]any{
		"email": "bob@test.com",
	}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusCreated)

	token := inviteToken(t, env, "bob@test.com")
	if err := env.db.Model(&models.Invitation{}).
		Where("token = ?", token).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("failed backdating invitation: %v", err)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", nil, authHeaders(bobToken))
	assertStatus(t, resp, http.StatusGone)

	// The lazy expiry flips the stored status as well.
	var invitation models.Invitation
	if err := env.db.First(&invitation, "token = ?", token).Error; err != nil {
		t.Fatalf("failed reloading invitation: %v", err)
	}
	if invitation.Status != models.InvitationStatusExpired {
		t.Fatalf("expected expired status, got %s", invitation.Status)
	}
}

func TestInvitationRevoke(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	_, bobToken := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")

	group := createTestGroup(t, env.db, alice, "Family")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/invitations", map[string]any{
		"email": "bob@test.com",
	}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusCreated)
	body := decodeJSONMap(t, resp)
	data, _ := body["data"].(map[string]any)
	invitationID, _ := data["id"].(string)

	t.Run("the invitee cannot revoke", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/invitations/"+invitationID, nil, authHeaders(bobToken))
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("the inviter revokes", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/invitations/"+invitationID, nil, authHeaders(aliceToken))
		assertStatus(t, resp, http.StatusNoContent)

		token := func() string {
			var inv models.Invitation
			if err := env.db.First(&inv, "id = ?", invitationID).Error; err == nil {
				return inv.Token
			}
			return ""
		}()
		if token != "" {
			t.Fatal("expected the invitation row to be deleted")
		}
	})
}

func TestAcceptTriggersMemberAddedCascade(t *testing.T) {
	env := setupTestEnv(t)
	alice, aliceToken := createTestUser(t, env.db, "alice@test.com", "password123", "Alice")
	bob, _ := createTestUser(t, env.db, "bob@test.com", "password123", "Bob")
	carol, carolToken := createTestUser(t, env.db, "carol@test.com", "password123", "Carol")

	group := createTestGroup(t, env.db, alice, "Family")
	addTestMember(t, env.db, group, bob, models.GroupRoleMember)

	// Carol's item is already shared with the group she is about to
	// join; bob holds a claim on it.
	carolItem := createTestItem(t, env.db, carol, "Carol's wish", int64Ptr(9000))
	shareTestItem(t, env.db, carolItem, group)
	claim := &models.Claim{
		ItemID:    carolItem.ID,
		UserID:    bob.ID,
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 30),
	}
	if err := env.db.Create(claim).Error; err != nil {
		t.Fatalf("failed seeding claim: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/invitations", map[string]any{
		"email": "carol@test.com",
	}, authHeaders(aliceToken))
	assertStatus(t, resp, http.StatusCreated)

	token := inviteToken(t, env, "carol@test.com")
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/invitations/"+token+"/accept", nil, authHeaders(carolToken))
	assertStatus(t, resp, http.StatusOK)

	var tagRows int64
	env.db.Model(&models.ItemRecipient{}).
		Where("item_id = ? AND group_id = ?", carolItem.ID, group.ID).Count(&tagRows)
	if tagRows != 0 {
		t.Fatal("expected carol's item to be auto-unshared when she joined")
	}

	var claimRows int64
	env.db.Model(&models.Claim{}).Where("item_id = ?", carolItem.ID).Count(&claimRows)
	if claimRows != 0 {
		t.Fatalf("expected claims on carol's item to be deleted, got %d", claimRows)
	}

	if got := countNotifications(t, env, bob.ID, models.NotificationItemsUnshared); got != 1 {
		t.Fatalf("expected bob to hear the item was unshared, got %d", got)
	}
	// Carol never learns that a claim on her item existed.
	if got := countNotifications(t, env, carol.ID, models.NotificationItemsUnshared); got != 0 {
		t.Fatalf("the item owner must not hear about released claims, got %d", got)
	}
}
