package tests

import (
	"errors"
	"strings"
	"testing"
)

func TestFeedbackAccessControl(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	manager, err := env.newUser("fbmanager")
	if err != nil {
		t.Fatal(err)
	}
	report, err := env.newUser("fbreport")
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := env.newUser("fboutsider")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.setSupervisor(report.userId, manager.userId); err != nil {
		t.Fatal(err)
	}

	if err := manager.submitFeedback(report.userId, "manager", "solid quarter"); err != nil {
		t.Fatal(err)
	}
	if err := outsider.submitFeedback(report.userId, "peer", "great teammate"); err != nil {
		t.Fatal(err)
	}

	// self feedback can only target its author
	if err := outsider.submitFeedback(report.userId, "self", "I did great"); err == nil {
		t.Fatal("self feedback about someone else should be rejected")
	}

	// the reportee, their supervisor, and admins can read feedback
	for _, c := range []client{report, manager, admin} {
		var entries []map[string]interface{}
		if err := c.Get("/insights/feedback/" + report.userId).Do(&entries); err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 feedback entries, got %d", len(entries))
		}
	}

	err = outsider.Get("/insights/feedback/" + report.userId).Do(nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAnalyzeFeedback(t *testing.T) {
	env := setupTestEnv(t)

	manager, err := env.newUser("anmanager")
	if err != nil {
		t.Fatal(err)
	}
	report, err := env.newUser("anreport")
	if err != nil {
		t.Fatal(err)
	}

	// nothing to analyze yet
	if _, err := report.analyzeFeedback(report.userId); err == nil {
		t.Fatal("analysis without feedback should fail")
	}

	if err := manager.submitFeedback(report.userId, "peer", "communicates clearly"); err != nil {
		t.Fatal(err)
	}
	if err := manager.submitFeedback(report.userId, "peer", "misses deadlines"); err != nil {
		t.Fatal(err)
	}

	env.dispatch.response = "strengths: communication"

	res, err := report.analyzeFeedback(report.userId)
	if err != nil {
		t.Fatal(err)
	}
	if res["summary"] != "strengths: communication" {
		t.Fatalf("wrong summary %v", res["summary"])
	}
	if res["entries"].(float64) != 2 {
		t.Fatalf("expected 2 entries analyzed, got %v", res["entries"])
	}

	if len(env.dispatch.prompts) != 1 {
		t.Fatalf("expected 1 generation call, got %d", len(env.dispatch.prompts))
	}
	prompt := env.dispatch.prompts[0].Prompt
	if !strings.Contains(prompt, "communicates clearly") || !strings.Contains(prompt, "misses deadlines") {
		t.Fatalf("feedback text missing from prompt: %q", prompt)
	}
}

func TestGenerateScenario(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("scenario1")
	if err != nil {
		t.Fatal(err)
	}

	env.dispatch.response = "You are meeting a frustrated teammate."

	var res map[string]string
	err = user.Post("/insights/scenario").Json(map[string]string{"topic": "difficult conversations"}).Do(&res)
	if err != nil {
		t.Fatal(err)
	}
	if res["scenario"] != "You are meeting a frustrated teammate." {
		t.Fatalf("wrong scenario %v", res["scenario"])
	}

	if err := user.Post("/insights/scenario").Json(map[string]string{}).Do(nil); err == nil {
		t.Fatal("scenario without topic should be rejected")
	}
}

func TestAnalyzeDispatchFailure(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("failuser")
	if err != nil {
		t.Fatal(err)
	}

	if err := user.submitFeedback(user.userId, "self", "thinking out loud"); err != nil {
		t.Fatal(err)
	}

	env.dispatch.err = errors.New("model unavailable")

	if _, err := user.analyzeFeedback(user.userId); err == nil {
		t.Fatal("dispatch failures should surface as errors")
	}
}
