package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Objective statuses.
const (
	Draft      = "draft"
	InProgress = "in_progress"
	AtRisk     = "at_risk"
	OnTrack    = "on_track"
	Completed  = "completed"
)

// Key result statuses.
const (
	NotStarted = "not_started"
	// in_progress and completed are shared with objective statuses
)

// Visibility tiers.
const (
	Private      = "private"
	Team         = "team"
	Department   = "department"
	Organization = "organization"
)

// Approval statuses.
const (
	ApprovalPending          = "pending"
	ApprovalApproved         = "approved"
	ApprovalRejected         = "rejected"
	ApprovalRequestedChanges = "requested_changes"
)

// Progress calculation methods.
const (
	WeightedSum = "weighted_sum"
	WeightedAvg = "weighted_avg"
)

// Key result measurement types.
const (
	MeasureNumeric    = "numeric"
	MeasurePercentage = "percentage"
	MeasureCurrency   = "currency"
	MeasureBoolean    = "boolean"
)

// Cycle statuses.
const (
	CycleUpcoming  = "upcoming"
	CycleActive    = "active"
	CycleCompleted = "completed"
	CycleArchived  = "archived"
)

// Alignment types. parent_child is currently the only one.
const (
	AlignmentParentChild = "parent_child"
)

func CheckValidObjectiveStatus(status string) error {
	switch status {
	case Draft, InProgress, AtRisk, OnTrack, Completed:
		return nil
	}
	return fmt.Errorf("invalid objective status '%v'", status)
}

func CheckValidKeyResultStatus(status string) error {
	switch status {
	case NotStarted, InProgress, Completed:
		return nil
	}
	return fmt.Errorf("invalid key result status '%v'", status)
}

func CheckValidVisibility(visibility string) error {
	switch visibility {
	case Private, Team, Department, Organization:
		return nil
	}
	return fmt.Errorf("invalid visibility '%v'", visibility)
}

func CheckValidCalcMethod(method string) error {
	switch method {
	case WeightedSum, WeightedAvg:
		return nil
	}
	return fmt.Errorf("invalid progress calculation method '%v'", method)
}

func CheckValidMeasurement(measurement string) error {
	switch measurement {
	case MeasureNumeric, MeasurePercentage, MeasureCurrency, MeasureBoolean:
		return nil
	}
	return fmt.Errorf("invalid measurement type '%v'", measurement)
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool   `gorm:"not null;default:false"`
	Role    string `gorm:"size:50;not null;default:'employee'"`

	SupervisorId *uuid.UUID `gorm:"type:uuid"`
	Supervisor   *User      `gorm:"constraint:OnDelete:SET NULL"`

	Units []UserUnit `gorm:"constraint:OnDelete:CASCADE"`
}

type BusinessUnit struct {
	Id   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name string    `gorm:"unique;size:100;not null"`
}

type UserUnit struct {
	UserId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UnitId    uuid.UUID `gorm:"type:uuid;primaryKey"`
	IsPrimary bool      `gorm:"not null;default:false"`

	User *User         `gorm:"constraint:OnDelete:CASCADE"`
	Unit *BusinessUnit `gorm:"constraint:OnDelete:CASCADE"`
}

type OkrCycle struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"size:100;not null"`
	Description string

	StartDate time.Time `gorm:"not null"`
	EndDate   time.Time `gorm:"not null"`

	Status string `gorm:"size:50;not null;default:'upcoming'"`
}

type Objective struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:200;not null"`
	Description string

	CycleId uuid.UUID `gorm:"type:uuid;not null"`
	Cycle   *OkrCycle

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User

	Status     string  `gorm:"size:50;not null;default:'draft'"`
	Progress   float64 `gorm:"not null;default:0"`
	Visibility string  `gorm:"size:50;not null;default:'private'"`

	ApprovalStatus string `gorm:"size:50;not null;default:'pending'"`
	CalcMethod     string `gorm:"size:50;not null;default:'weighted_sum'"`

	ParentObjectiveId *uuid.UUID `gorm:"type:uuid"`
	ParentObjective   *Objective `gorm:"constraint:OnDelete:SET NULL"`

	UnitId *uuid.UUID    `gorm:"type:uuid"`
	Unit   *BusinessUnit `gorm:"constraint:OnDelete:SET NULL"`

	KeyResults []KeyResult `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type KeyResult struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ObjectiveId uuid.UUID `gorm:"type:uuid;not null;index"`

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User

	Title string `gorm:"size:200;not null"`

	MeasurementType string `gorm:"size:50;not null;default:'numeric'"`

	StartValue   float64 `gorm:"not null;default:0"`
	CurrentValue float64 `gorm:"not null;default:0"`
	TargetValue  float64 `gorm:"not null;default:0"`
	BooleanValue bool    `gorm:"not null;default:false"`

	Weight float64 `gorm:"not null;default:1"`

	Status   string  `gorm:"size:50;not null;default:'not_started'"`
	Progress float64 `gorm:"not null;default:0"`

	DueDate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ObjectiveAlignment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SourceObjectiveId  uuid.UUID `gorm:"type:uuid;not null;index"`
	AlignedObjectiveId uuid.UUID `gorm:"type:uuid;not null;index"`

	SourceObjective  *Objective `gorm:"foreignKey:SourceObjectiveId;constraint:OnDelete:CASCADE"`
	AlignedObjective *Objective `gorm:"foreignKey:AlignedObjectiveId;constraint:OnDelete:CASCADE"`

	AlignmentType string  `gorm:"size:50;not null;default:'parent_child'"`
	Weight        float64 `gorm:"not null;default:1"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt time.Time
}

// OkrRoleSettings is a single configuration row. Each permission column holds
// a comma separated list of role names allowed to perform the action.
type OkrRoleSettings struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CanCreateOrgObjectives  string `gorm:"size:500;not null;default:''"`
	CanCreateDeptObjectives string `gorm:"size:500;not null;default:''"`
	CanCreateTeamObjectives string `gorm:"size:500;not null;default:''"`
	CanEditAllObjectives    string `gorm:"size:500;not null;default:''"`
	CanViewAllObjectives    string `gorm:"size:500;not null;default:''"`

	UpdatedAt time.Time
}

// Survey campaign statuses.
const (
	SurveyDraft  = "draft"
	SurveyOpen   = "open"
	SurveyClosed = "closed"
)

// Survey question kinds.
const (
	QuestionRating = "rating"
	QuestionText   = "text"
)

type SurveyCampaign struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:200;not null"`
	Description string

	Status    string `gorm:"size:50;not null;default:'draft'"`
	Anonymous bool   `gorm:"not null;default:false"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`

	StartDate time.Time
	EndDate   time.Time

	Questions []SurveyQuestion `gorm:"foreignKey:CampaignId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
}

type SurveyQuestion struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CampaignId uuid.UUID `gorm:"type:uuid;not null;index"`

	Prompt   string `gorm:"not null"`
	Kind     string `gorm:"size:50;not null;default:'rating'"`
	Position int    `gorm:"not null;default:0"`
}

type SurveyResponse struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CampaignId uuid.UUID `gorm:"type:uuid;not null;index"`
	QuestionId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId     uuid.UUID `gorm:"type:uuid;not null"`

	Rating *int
	Text   string

	SubmittedAt time.Time
}

// Live session statuses.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

type LiveSession struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title  string    `gorm:"size:200;not null"`
	HostId uuid.UUID `gorm:"type:uuid;not null"`

	Code   string `gorm:"unique;size:10;not null"`
	Status string `gorm:"size:50;not null;default:'open'"`

	Polls []LivePoll `gorm:"foreignKey:SessionId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
}

type LivePoll struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;index"`

	Prompt   string `gorm:"not null"`
	Open     bool   `gorm:"not null;default:true"`
	Position int    `gorm:"not null;default:0"`

	Options []LivePollOption `gorm:"foreignKey:PollId;constraint:OnDelete:CASCADE"`
}

type LivePollOption struct {
	Id     uuid.UUID `gorm:"type:uuid;primaryKey"`
	PollId uuid.UUID `gorm:"type:uuid;not null;index"`

	Label    string `gorm:"size:200;not null"`
	Position int    `gorm:"not null;default:0"`
}

type LiveVote struct {
	PollId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	OptionId uuid.UUID `gorm:"type:uuid;not null"`

	CastAt time.Time
}

// Feedback categories.
const (
	FeedbackPeer    = "peer"
	FeedbackManager = "manager"
	FeedbackSelf    = "self"
)

type FeedbackEntry struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ReporteeId uuid.UUID `gorm:"type:uuid;not null;index"`
	AuthorId   uuid.UUID `gorm:"type:uuid;not null"`

	Category string `gorm:"size:50;not null;default:'peer'"`
	Text     string `gorm:"not null"`

	CreatedAt time.Time
}

func (o *Objective) ExportName() string {
	return fmt.Sprintf("objective-%v", o.Id)
}

func (c *SurveyCampaign) ExportName() string {
	return fmt.Sprintf("survey-%v", c.Id)
}
