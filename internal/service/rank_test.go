package service

import (
	"testing"
	"time"

	"github.com/beniforreal/nbti-client/internal/model"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestSortMembers_Ranking(t *testing.T) {
	t.Parallel()
	roster := []model.Member{
		{ID: "m2", Role: model.RoleMember, Order: 5, CreatedAt: day(3)},
		{ID: "d2", Role: model.RoleDeputy, Order: 2, CreatedAt: day(1)},
		{ID: "leader", Role: model.RoleGuildMaster, CreatedAt: day(9)},
		{ID: "m1", Role: model.RoleMember, Order: model.DefaultOrder, CreatedAt: day(2)},
		{ID: "d1", Role: model.RoleDeputy, Order: 1, CreatedAt: day(5)},
		{ID: "m3", Role: model.RoleMember, Order: 5, CreatedAt: day(1)},
	}

	got := SortMembers(roster)

	want := []string{"leader", "d1", "d2", "m3", "m2", "m1"}
	if len(got) != len(want) {
		t.Fatalf("want %d members, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestSortMembers_LeadersByCreation(t *testing.T) {
	t.Parallel()
	roster := []model.Member{
		{ID: "gm2", Role: model.RoleGuildMaster, CreatedAt: day(7)},
		{ID: "gm1", Role: model.RoleGuildMaster, CreatedAt: day(2)},
	}
	got := SortMembers(roster)
	if got[0].ID != "gm1" || got[1].ID != "gm2" {
		t.Fatalf("guild masters must sort by creation time, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSortMembers_UnknownRoleSortsAsRegular(t *testing.T) {
	t.Parallel()
	roster := []model.Member{
		{ID: "odd", Role: "treasurer", Order: 1, CreatedAt: day(1)},
		{ID: "dep", Role: model.RoleDeputy, Order: 999, CreatedAt: day(1)},
	}
	got := SortMembers(roster)
	if got[0].ID != "dep" {
		t.Fatalf("deputies precede unrecognized roles, got %s first", got[0].ID)
	}
}

func TestSortMembers_PureAndIdempotent(t *testing.T) {
	t.Parallel()
	roster := []model.Member{
		{ID: "b", Role: model.RoleMember, Order: 2, CreatedAt: day(1)},
		{ID: "a", Role: model.RoleMember, Order: 1, CreatedAt: day(1)},
	}
	got := SortMembers(roster)
	if roster[0].ID != "b" {
		t.Fatalf("input slice must not be mutated")
	}
	again := SortMembers(got)
	for i := range got {
		if got[i].ID != again[i].ID {
			t.Fatalf("re-sorting sorted output must be a no-op")
		}
	}
}
