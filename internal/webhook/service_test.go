package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/conversation"
	"github.com/sowerflow/sowerflow/internal/instagram"
)

func decode(t *testing.T, raw string) instagram.Delivery {
	t.Helper()
	var d instagram.Delivery
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	return d
}

func TestHandleDeliveryKeepsPerConversationOrder(t *testing.T) {
	store := conversation.NewMemoryStore()
	accounts := account.NewResolver(account.NewMemoryRepo(account.Profile{TenantID: "t1", AccountID: "a1"}), nil)
	svc := NewService(store, accounts, instagram.NewNormalizer("app-1", nil), nil, nil)

	var msgs []string
	for i := 0; i < 20; i++ {
		user := fmt.Sprintf("u%d", i%4)
		msgs = append(msgs, fmt.Sprintf(
			`{"sender":{"id":%q},"recipient":{"id":"a1"},"timestamp":%d,"message":{"mid":"m%d","text":"t%d"}}`,
			user, 1700000000000+int64(i), i, i))
	}
	// The account answers u0 from the inbox; that echo hands the thread to a human.
	msgs = append(msgs, `{"sender":{"id":"a1"},"recipient":{"id":"u0"},"timestamp":1700000000100,
		"message":{"mid":"e1","text":"je prends le relais","is_echo":true,"app_id":"other-app"}}`)
	// And u1 gets an echo of this application's own send.
	msgs = append(msgs, `{"sender":{"id":"a1"},"recipient":{"id":"u1"},"timestamp":1700000000101,
		"message":{"mid":"e2","text":"réponse auto","is_echo":true,"app_id":"app-1"}}`)

	d := decode(t, `{"object":"instagram","entry":[{"id":"a1","time":1700000000,"messaging":[`+strings.Join(msgs, ",")+`]}]}`)
	require.NoError(t, svc.HandleDelivery(context.Background(), d))

	for i := 0; i < 4; i++ {
		c, err := store.Get(context.Background(), fmt.Sprintf("a1_u%d", i))
		require.NoError(t, err)
		var keys []string
		for _, e := range c.Events {
			keys = append(keys, e.DedupeKey)
		}
		want := []string{fmt.Sprintf("m%d", i), fmt.Sprintf("m%d", i+4), fmt.Sprintf("m%d", i+8), fmt.Sprintf("m%d", i+12), fmt.Sprintf("m%d", i+16)}
		switch i {
		case 0:
			want = append(want, "e1")
			assert.Equal(t, conversation.StatusIgnored, c.Status)
		case 1:
			want = append(want, "e2")
			assert.Equal(t, conversation.StatusWaitingForCounterpart, c.Status)
		default:
			assert.Equal(t, conversation.StatusAwaitingReply, c.Status)
		}
		assert.Equal(t, want, keys)
	}
}

func TestHandleDeliveryUsesInlineUsernameWithoutCredential(t *testing.T) {
	store := conversation.NewMemoryStore()
	accounts := account.NewResolver(account.NewMemoryRepo(account.Profile{TenantID: "t1", AccountID: "a1"}), nil)
	users := &stubUsers{}
	svc := NewService(store, accounts, instagram.NewNormalizer("", nil), users, nil)

	d := decode(t, `{"object":"instagram","entry":[{"id":"a1","time":1700000000,"changes":[
		{"field":"comments","value":{"from":{"id":"u9","username":"camille_fleurs"},"id":"c1","text":"Prix ?","media":{"id":"p1"}}}]}]}`)
	require.NoError(t, svc.HandleDelivery(context.Background(), d))

	c, err := store.Get(context.Background(), "a1_u9")
	require.NoError(t, err)
	assert.Equal(t, "camille_fleurs", c.CounterpartName)
	assert.Zero(t, users.calls)
}
