package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"engagehub/portal/services"

	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		if res.StatusCode == http.StatusForbidden {
			return ErrForbidden
		}
		return fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, res.StatusCode, w.Body.String())
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

var ErrUnauthorized = errors.New("unauthorized")

var ErrForbidden = errors.New("forbidden")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password, role string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password, "role": role,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) createUser(username, email, password, role string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password, "role": role,
	}

	err := c.Post("/user/create").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) deleteUser(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v", userId)).Do(nil)
}

func (c *client) promoteAdmin(userId string) error {
	return c.Post(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) demoteAdmin(userId string) error {
	return c.Delete(fmt.Sprintf("/user/%v/admin", userId)).Do(nil)
}

func (c *client) setSupervisor(userId, supervisorId string) error {
	return c.Post(fmt.Sprintf("/user/%v/supervisor/%v", userId, supervisorId)).Do(nil)
}

func (c *client) listUsers() ([]services.UserInfo, error) {
	var res []services.UserInfo
	err := c.Get("/user/list").Do(&res)
	return res, err
}

func (c *client) userInfo() (services.UserInfo, error) {
	var res services.UserInfo
	err := c.Get("/user/info").Do(&res)
	return res, err
}

func (c *client) createUnit(name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]string
	err := c.Post("/unit/create").Json(body).Do(&res)
	return res["unit_id"], err
}

func (c *client) deleteUnit(unitId string) error {
	return c.Delete(fmt.Sprintf("/unit/%v", unitId)).Do(nil)
}

func (c *client) listUnits() ([]services.UnitInfo, error) {
	var res []services.UnitInfo
	err := c.Get("/unit/list").Do(&res)
	return res, err
}

func (c *client) addUserToUnit(unitId, userId string) error {
	return c.Post(fmt.Sprintf("/unit/%v/users/%v", unitId, userId)).Do(nil)
}

func (c *client) createCycle(name string, start, end time.Time) (string, error) {
	body := map[string]interface{}{"name": name, "start_date": start, "end_date": end}

	var res map[string]string
	err := c.Post("/cycle/create").Json(body).Do(&res)
	return res["cycle_id"], err
}

func (c *client) activateCycle(cycleId string) error {
	return c.Post(fmt.Sprintf("/cycle/%v/activate", cycleId)).Do(nil)
}

func (c *client) listCycles() ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.Get("/cycle/list").Do(&res)
	return res, err
}

func (c *client) createObjective(body map[string]interface{}) (string, error) {
	var res map[string]string
	err := c.Post("/objective/create").Json(body).Do(&res)
	return res["objective_id"], err
}

func (c *client) getObjective(objectiveId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Get(fmt.Sprintf("/objective/%v", objectiveId)).Do(&res)
	return res, err
}

func (c *client) listObjectives() ([]services.ObjectiveInfo, error) {
	var res []services.ObjectiveInfo
	err := c.Get("/objective/list").Do(&res)
	return res, err
}

func (c *client) recalculateObjective(objectiveId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/objective/%v/recalculate", objectiveId)).Do(&res)
	return res, err
}

func (c *client) rootPath(objectiveId string) ([]string, error) {
	var res struct {
		Path []string `json:"path"`
	}
	err := c.Get(fmt.Sprintf("/objective/%v/root-path", objectiveId)).Do(&res)
	return res.Path, err
}

func (c *client) setObjectiveParent(objectiveId, parentId string) error {
	return c.Post(fmt.Sprintf("/objective/%v/parent/%v", objectiveId, parentId)).Do(nil)
}

func (c *client) createKeyResult(body map[string]interface{}) (string, error) {
	var res map[string]string
	err := c.Post("/keyresult/create").Json(body).Do(&res)
	return res["key_result_id"], err
}

func (c *client) recordProgress(keyResultId string, body map[string]interface{}) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/keyresult/%v/progress", keyResultId)).Json(body).Do(&res)
	return res, err
}

func (c *client) createCampaign(body map[string]interface{}) (string, error) {
	var res map[string]string
	err := c.Post("/survey/create").Json(body).Do(&res)
	return res["campaign_id"], err
}

func (c *client) openCampaign(campaignId string) error {
	return c.Post(fmt.Sprintf("/survey/%v/open", campaignId)).Do(nil)
}

func (c *client) closeCampaign(campaignId string) error {
	return c.Post(fmt.Sprintf("/survey/%v/close", campaignId)).Do(nil)
}

func (c *client) respondToCampaign(campaignId string, answers []map[string]interface{}) error {
	return c.Post(fmt.Sprintf("/survey/%v/respond", campaignId)).Json(map[string]interface{}{"answers": answers}).Do(nil)
}

func (c *client) campaignResults(campaignId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Get(fmt.Sprintf("/survey/%v/results", campaignId)).Do(&res)
	return res, err
}

func (c *client) createSession(title string) (map[string]string, error) {
	var res map[string]string
	err := c.Post("/session/create").Json(map[string]string{"title": title}).Do(&res)
	return res, err
}

func (c *client) joinSession(code string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Get(fmt.Sprintf("/session/join/%v", code)).Do(&res)
	return res, err
}

func (c *client) createPoll(sessionId, prompt string, options []string) (string, error) {
	body := map[string]interface{}{"prompt": prompt, "options": options}

	var res map[string]string
	err := c.Post(fmt.Sprintf("/session/%v/polls", sessionId)).Json(body).Do(&res)
	return res["poll_id"], err
}

func (c *client) openPoll(sessionId, pollId string) error {
	return c.Post(fmt.Sprintf("/session/%v/polls/%v/open", sessionId, pollId)).Do(nil)
}

func (c *client) vote(sessionId, pollId, optionId string) error {
	return c.Post(fmt.Sprintf("/session/%v/polls/%v/vote", sessionId, pollId)).Json(map[string]string{"option_id": optionId}).Do(nil)
}

func (c *client) pollResults(sessionId, pollId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Get(fmt.Sprintf("/session/%v/polls/%v/results", sessionId, pollId)).Do(&res)
	return res, err
}

func (c *client) submitFeedback(reporteeId, category, text string) error {
	body := map[string]string{"reportee_id": reporteeId, "category": category, "text": text}
	return c.Post("/insights/feedback").Json(body).Do(nil)
}

func (c *client) analyzeFeedback(reporteeId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/insights/analyze/%v", reporteeId)).Do(&res)
	return res, err
}

func (c *client) updateRoleSettings(settings services.RoleSettingsInfo) error {
	return c.Post("/admin/role-settings").Json(settings).Do(nil)
}

func (c *client) getRoleSettings() (services.RoleSettingsInfo, error) {
	var res services.RoleSettingsInfo
	err := c.Get("/admin/role-settings").Do(&res)
	return res, err
}

func (c *client) getCampaign(campaignId string) (map[string]interface{}, error) {
	var res map[string]interface{}
	err := c.Get(fmt.Sprintf("/survey/%v", campaignId)).Do(&res)
	return res, err
}
