package team

import "testing"

func TestTeam_New(t *testing.T) {
	tm := New("lead-1", []string{"dev-1", "dev-2"})

	if tm.ID == "" {
		t.Error("team should get an id")
	}
	if tm.Phase != PhaseForming {
		t.Errorf("new team should be forming, got %s", tm.Phase)
	}
	if tm.AllDone() {
		t.Error("team with pending subordinates is not done")
	}
}

func TestTeam_MemberIDs(t *testing.T) {
	tm := New("lead-1", []string{"dev-1", "dev-2"})

	ids := tm.MemberIDs()
	if len(ids) != 3 || ids[0] != "lead-1" {
		t.Errorf("expected leader first then subordinates, got %v", ids)
	}
}

func TestTeam_Contains(t *testing.T) {
	tm := New("lead-1", []string{"dev-1"})

	if !tm.Contains("lead-1") || !tm.Contains("dev-1") {
		t.Error("members should be contained")
	}
	if tm.Contains("stranger") {
		t.Error("non-members should not be contained")
	}
}

func TestTeam_MarkDone(t *testing.T) {
	tm := New("lead-1", []string{"dev-1", "dev-2"})

	if tm.MarkDone("dev-1", true) {
		t.Error("one of two subordinates done is not all done")
	}
	if !tm.MarkDone("dev-2", true) {
		t.Error("all subordinates done should report true")
	}
	if tm.AnyFailed() {
		t.Error("no failures recorded")
	}
}

func TestTeam_MarkDoneFailure(t *testing.T) {
	tm := New("lead-1", []string{"dev-1", "dev-2"})

	tm.MarkDone("dev-1", false)
	tm.MarkDone("dev-2", true)
	if !tm.AnyFailed() {
		t.Error("a failed subordinate must mark the team failed")
	}
}

func TestTeam_MarkDoneIgnoresOutsiders(t *testing.T) {
	tm := New("lead-1", []string{"dev-1"})

	tm.MarkDone("lead-1", true)
	tm.MarkDone("stranger", true)
	if tm.AllDone() {
		t.Error("only subordinate completions count")
	}
}

func TestTeam_LeaderFailureMarksTeamFailed(t *testing.T) {
	tm := New("lead-1", []string{"dev-1"})

	tm.MarkDone("lead-1", false)
	if tm.AllDone() {
		t.Error("leader does not count toward subordinate completion")
	}
	tm.MarkDone("dev-1", true)
	if !tm.AnyFailed() {
		t.Error("a failed leader must mark the team failed")
	}
}

func TestTeam_NoSubordinates(t *testing.T) {
	tm := New("lead-1", nil)
	if !tm.AllDone() {
		t.Error("a team with no subordinates is vacuously done")
	}
}
