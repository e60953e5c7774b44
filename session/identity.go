// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strings"

	"github.com/crowdsync/crowdsync/provider"
)

// Identity is the signed-in account as the backend reports it. The
// client never modifies it.
type Identity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// DisplayName is the account name, or the local part of the email
// address for accounts that never set one.
func (i Identity) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(i.Email, "@")
	return local
}

func identityFromUser(user *provider.User) Identity {
	return Identity{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		EmailVerified: user.EmailVerification,
	}
}

// State is what subscribers observe.
type State struct {
	Identity Identity
	SignedIn bool
	// Loading is true until the first session check completes.
	Loading bool
}
