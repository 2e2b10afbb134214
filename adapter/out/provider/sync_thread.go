// Package provider implements mail provider adapters.
package provider

import (
	"strings"

	"sync_server/core/domain"
)

// SelectReceived picks the message a thread should surface in the inbox:
// the most recently received message that was not authored by the mailbox
// owner. A message counts as self-authored when it carries a provider sent
// flag or when the owner's address appears in its From header. Returns nil
// when every message in the thread is self-authored; such threads are
// dropped rather than surfaced with a sent message standing in for a
// received one.
//
// Self-detection is a case-insensitive substring match against the free-text
// From header. An owner address that is a substring of another address will
// misfire; known limitation, kept because stricter parsing changes which
// threads surface.
func SelectReceived(msgs []domain.Message, ownerAddr string) *domain.Message {
	owner := strings.ToLower(strings.TrimSpace(ownerAddr))

	var pick *domain.Message
	for i := range msgs {
		m := &msgs[i]
		if m.IsSent {
			continue
		}
		if owner != "" && strings.Contains(strings.ToLower(m.From), owner) {
			continue
		}
		if pick == nil || m.ReceivedAt.After(pick.ReceivedAt) {
			pick = m
		}
	}
	return pick
}
