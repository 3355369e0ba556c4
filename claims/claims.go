package claims

import (
	"fmt"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleDoctor       Role = "DOCTOR"
	RoleReceptionist Role = "RECEPTIONIST"
	RoleLabTech      Role = "LAB_TECH"
	RolePatient      Role = "PATIENT"
)

var RoleList = []Role{RoleAdmin, RoleDoctor, RoleReceptionist, RoleLabTech, RolePatient}

func ParseRole(s string) (Role, error) {
	for _, role := range RoleList {
		if string(role) == s {
			return role, nil
		}
	}

	return "", fmt.Errorf("unknown role: %q", s)
}

// Claims is the identity snapshot embedded in a credential at issuance.
// It may become stale: revocation is detected by comparing SessionEpoch
// against the authoritative identity record, not by inspecting the claims.
type Claims struct {
	SubjectID    string `json:"sub"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	Approved     bool   `json:"approved"`
	SessionEpoch int64  `json:"session_epoch"`
}

type TrustLevel int

const (
	// TrustVerified means the credential signature was checked.
	TrustVerified TrustLevel = iota
	// TrustUnverified means the claims were decoded without a signature
	// check, after verification timed out. Never sufficient on its own
	// for privileged decisions.
	TrustUnverified
)

func (t TrustLevel) String() string {
	if t == TrustVerified {
		return "verified"
	}

	return "unverified"
}

// Identity keys the redirect-loop guard counters: one counter per
// (host, path, subject) triple. Subject is empty for anonymous requests.
type Identity struct {
	Host    string
	Path    string
	Subject string
}

func (i Identity) Key() string {
	subject := i.Subject
	if subject == "" {
		subject = "anonymous"
	}

	return i.Host + "|" + i.Path + "|" + subject
}
