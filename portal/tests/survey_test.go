package tests

import (
	"errors"
	"testing"
)

func createTestCampaign(t *testing.T, admin client) (string, []string) {
	t.Helper()

	campaignId, err := admin.createCampaign(map[string]interface{}{
		"name":       "pulse check",
		"start_date": quarterStart(),
		"end_date":   quarterEnd(),
		"questions": []map[string]string{
			{"prompt": "How are things going?", "kind": "rating"},
			{"prompt": "Anything on your mind?", "kind": "text"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	campaign, err := admin.getCampaign(campaignId)
	if err != nil {
		t.Fatal(err)
	}

	questions := campaign["Questions"].([]interface{})
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.(map[string]interface{})["Id"].(string))
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(ids))
	}

	return campaignId, ids
}

func TestSurveyAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	user, err := env.newUser("surveyuser")
	if err != nil {
		t.Fatal(err)
	}

	_, err = user.createCampaign(map[string]interface{}{
		"name":      "rogue survey",
		"questions": []map[string]string{{"prompt": "hi", "kind": "text"}},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSurveyLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	campaignId, questionIds := createTestCampaign(t, admin)

	user, err := env.newUser("respondent")
	if err != nil {
		t.Fatal(err)
	}

	// responses are rejected while the campaign is still a draft
	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 4},
	})
	if err == nil {
		t.Fatal("draft campaigns should not accept responses")
	}

	if err := admin.openCampaign(campaignId); err != nil {
		t.Fatal(err)
	}

	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 4},
		{"question_id": questionIds[1], "text": "all good"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// each user submits at most once
	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 5},
	})
	if err == nil {
		t.Fatal("second submission should be rejected")
	}

	other, err := env.newUser("respondent2")
	if err != nil {
		t.Fatal(err)
	}
	err = other.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.closeCampaign(campaignId); err != nil {
		t.Fatal(err)
	}

	err = other.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 1},
	})
	if err == nil {
		t.Fatal("closed campaigns should not accept responses")
	}

	results, err := admin.campaignResults(campaignId)
	if err != nil {
		t.Fatal(err)
	}

	questions := results["questions"].([]interface{})
	if len(questions) != 2 {
		t.Fatalf("expected results for 2 questions, got %d", len(questions))
	}
	rating := questions[0].(map[string]interface{})
	if rating["responses"].(float64) != 2 {
		t.Fatalf("expected 2 rating responses, got %v", rating["responses"])
	}
	if rating["rating_avg"].(float64) != 3 {
		t.Fatalf("expected average rating 3, got %v", rating["rating_avg"])
	}

	// results are admin only
	if _, err := user.campaignResults(campaignId); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSurveyInvalidAnswers(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	campaignId, questionIds := createTestCampaign(t, admin)
	if err := admin.openCampaign(campaignId); err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("badanswers")
	if err != nil {
		t.Fatal(err)
	}

	// ratings are bounded 1 to 5
	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 9},
	})
	if err == nil {
		t.Fatal("out of range rating should be rejected")
	}

	// text questions require a non-empty answer
	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[1], "text": ""},
	})
	if err == nil {
		t.Fatal("empty text answer should be rejected")
	}
}

func TestSurveyExport(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	campaignId, questionIds := createTestCampaign(t, admin)
	if err := admin.openCampaign(campaignId); err != nil {
		t.Fatal(err)
	}

	user, err := env.newUser("exportuser")
	if err != nil {
		t.Fatal(err)
	}
	err = user.respondToCampaign(campaignId, []map[string]interface{}{
		{"question_id": questionIds[0], "rating": 5},
	})
	if err != nil {
		t.Fatal(err)
	}

	var res map[string]string
	if err := admin.Post("/survey/" + campaignId + "/export").Do(&res); err != nil {
		t.Fatal(err)
	}

	exists, err := env.storage.Exists(res["path"])
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("export file should exist in storage")
	}
}
