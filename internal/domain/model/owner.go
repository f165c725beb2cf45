package model

import (
	"strconv"
	"strings"
	"time"
)

// SystemOwnerID is the id of the built-in system identity. Keys owned by it
// belong to the operator rather than to a registered user.
const SystemOwnerID int64 = -1

// Owner is an identity that can own access keys.
type Owner struct {
	ID       int64
	Nickname string
	JoinedAt time.Time
}

// IsSystem reports whether o is the system identity (or any other
// non-positive id). System owners never receive notifications.
func (o Owner) IsSystem() bool {
	return o.ID <= 0
}

type ownerRefKind uint8

const (
	ownerRefNone ownerRefKind = iota
	ownerRefID
	ownerRefNickname
	ownerRefResolved
)

// OwnerRef is a reference to an owner that has not necessarily been looked up
// yet: a numeric id, a nickname, or an already resolved Owner. The zero value
// refers to nobody.
type OwnerRef struct {
	kind     ownerRefKind
	id       int64
	nickname string
	owner    Owner
}

// OwnerByID returns a reference to the owner with the given id.
func OwnerByID(id int64) OwnerRef {
	return OwnerRef{kind: ownerRefID, id: id}
}

// OwnerByNickname returns a reference to the owner with the given nickname.
func OwnerByNickname(nickname string) OwnerRef {
	return OwnerRef{kind: ownerRefNickname, nickname: nickname}
}

// OwnerOf returns a reference to an owner that was already loaded.
func OwnerOf(o Owner) OwnerRef {
	return OwnerRef{kind: ownerRefResolved, id: o.ID, owner: o}
}

// ParseOwnerRef interprets s as an owner id when it is an integer and as a
// nickname otherwise. An empty (or blank) string yields the zero OwnerRef.
func ParseOwnerRef(s string) OwnerRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return OwnerRef{}
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return OwnerByID(id)
	}
	return OwnerByNickname(s)
}

// IsZero reports whether r refers to nobody.
func (r OwnerRef) IsZero() bool {
	return r.kind == ownerRefNone
}

// ID returns the referenced id when r was built from an id or an Owner.
func (r OwnerRef) ID() (int64, bool) {
	if r.kind == ownerRefID || r.kind == ownerRefResolved {
		return r.id, true
	}
	return 0, false
}

// Nickname returns the referenced nickname when r was built from one.
func (r OwnerRef) Nickname() (string, bool) {
	if r.kind == ownerRefNickname {
		return r.nickname, true
	}
	return "", false
}

// Owner returns the owner r was built from, if any.
func (r OwnerRef) Owner() (Owner, bool) {
	if r.kind == ownerRefResolved {
		return r.owner, true
	}
	return Owner{}, false
}

func (r OwnerRef) String() string {
	switch r.kind {
	case ownerRefID, ownerRefResolved:
		return strconv.FormatInt(r.id, 10)
	case ownerRefNickname:
		return r.nickname
	default:
		return ""
	}
}
