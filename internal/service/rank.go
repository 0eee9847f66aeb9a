package service

import (
	"sort"

	"github.com/beniforreal/nbti-client/internal/model"
)

// roleTier maps a role to its sort precedence: guild master, then deputies,
// then everyone else.
func roleTier(r model.Role) int {
	switch r {
	case model.RoleGuildMaster:
		return 0
	case model.RoleDeputy:
		return 1
	default:
		return 2
	}
}

// CompareMembers is the total order over roster entries:
//  1. guild masters before all others, among themselves by creation time;
//  2. deputies by explicit order (default 999), ties by creation time;
//  3. deputies before regular members;
//  4. regular members by explicit order, ties by creation time.
func CompareMembers(a, b model.Member) int {
	at, bt := roleTier(a.Role), roleTier(b.Role)
	if at != bt {
		return at - bt
	}
	if at == 0 {
		return compareCreated(a, b)
	}
	if a.Order != b.Order {
		return a.Order - b.Order
	}
	return compareCreated(a, b)
}

func compareCreated(a, b model.Member) int {
	switch {
	case a.CreatedAt.Before(b.CreatedAt):
		return -1
	case b.CreatedAt.Before(a.CreatedAt):
		return 1
	}
	return 0
}

// SortMembers returns a new slice ordered by CompareMembers. The sort is
// stable and pure: sorting its own output is a no-op.
func SortMembers(members []model.Member) []model.Member {
	out := append([]model.Member(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareMembers(out[i], out[j]) < 0
	})
	return out
}
