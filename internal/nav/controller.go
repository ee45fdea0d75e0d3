// Package nav implements the workbook controller: a single application-state
// struct owning the current view, its parameter bag, the evidence working set
// and the cross-form link registry. Every user action is a discrete transition
// method; mutation and navigation happen in one call, never deferred.
package nav

import (
	"errors"
	"fmt"

	"portfolio/api/internal/linking"
	"portfolio/api/internal/portfolio"
)

// View identifies one of the workbook screens.
type View string

const (
	ViewDashboard       View = "dashboard"
	ViewRecordSelect    View = "record-select"
	ViewEvidenceList    View = "evidence-list"
	ViewEvidenceBrowser View = "evidence-browser"
	ViewEPAForm         View = "epa-form"
	ViewDOPSForm        View = "dops-form"
	ViewOSATSForm       View = "osats-form"
	ViewCBDForm         View = "cbd-form"
	ViewCRSForm         View = "crs-form"
	ViewGSATForm        View = "gsat-form"
	ViewMSFForm         View = "msf-form"
	ViewARCPPrep        View = "arcp-prep"
	ViewSIASetup        View = "sia-setup"
	ViewSettings        View = "settings"
)

var (
	ErrEvidenceNotFound  = errors.New("evidence not found")
	ErrLinkingInProgress = errors.New("a linking selection is already in progress")
	ErrLinkingNotActive  = errors.New("no linking selection in progress")
)

// FormView maps a form type to its screen.
func FormView(t portfolio.FormType) View {
	switch t {
	case portfolio.TypeEPA:
		return ViewEPAForm
	case portfolio.TypeDOPS:
		return ViewDOPSForm
	case portfolio.TypeOSATS:
		return ViewOSATSForm
	case portfolio.TypeCBD:
		return ViewCBDForm
	case portfolio.TypeCRS:
		return ViewCRSForm
	case portfolio.TypeGSAT:
		return ViewGSATForm
	case portfolio.TypeMSF:
		return ViewMSFForm
	case portfolio.TypeARCPPrep:
		return ViewARCPPrep
	default:
		return ViewEvidenceList
	}
}

// Origin records where a view was opened from so a single back returns there
// with the exact same parameters.
type Origin struct {
	View   View        `json:"view"`
	Params *FormParams `json:"params,omitempty"`
}

// FormParams is the transient parameter bag for the current view. It is
// replaced wholesale on every navigation and never persisted.
type FormParams struct {
	Specialty       string           `json:"specialty,omitempty"`
	Level           string           `json:"level,omitempty"`
	Subtype         string           `json:"subtype,omitempty"`
	SupervisorName  string           `json:"supervisorName,omitempty"`
	SupervisorEmail string           `json:"supervisorEmail,omitempty"`
	EvidenceID      string           `json:"evidenceId,omitempty"`
	StatusOverride  portfolio.Status `json:"statusOverride,omitempty"`
	InitialSection  int              `json:"initialSection,omitempty"`
	ItemIndex       int              `json:"itemIndex,omitempty"`
	Origin          *Origin          `json:"origin,omitempty"`
}

// ReturnTarget restores the originating view and scroll position once a
// linking or sub-form flow completes.
type ReturnTarget struct {
	View    View       `json:"view"`
	Params  FormParams `json:"params"`
	Section int        `json:"section"`
	Item    int        `json:"item,omitempty"`
}

// MandatoryFormContext describes an in-progress "complete sub-form X to
// satisfy requirement Y" flow. Cleared once the sub-form's creation is linked
// back to the requirement.
type MandatoryFormContext struct {
	ExpectedType   portfolio.FormType `json:"expectedType"`
	DefaultSubtype string             `json:"defaultSubtype,omitempty"`
	RequirementKey string             `json:"requirementKey"`
	Return         ReturnTarget       `json:"return"`
}

// Controller owns one trainee's workbook state. It is not safe for
// concurrent use; the app service serializes all access.
type Controller struct {
	view   View
	params FormParams
	notice string

	store *portfolio.Store
	sias  *portfolio.SIAList
	links *linking.Registry

	selecting  bool
	pendingKey string
	returnTo   *ReturnTarget
	mandatory  *MandatoryFormContext

	logf func(format string, args ...any)
}

// New creates a controller positioned on the dashboard. logf may be nil;
// when set it receives one line per transition.
func New(logf func(format string, args ...any)) *Controller {
	return &Controller{
		view:  ViewDashboard,
		store: portfolio.NewStore(),
		sias:  portfolio.NewSIAList(),
		links: linking.NewRegistry(),
		logf:  logf,
	}
}

func (c *Controller) View() View                { return c.view }
func (c *Controller) Params() FormParams        { return c.params }
func (c *Controller) Store() *portfolio.Store   { return c.store }
func (c *Controller) SIAs() *portfolio.SIAList  { return c.sias }
func (c *Controller) Links() *linking.Registry  { return c.links }
func (c *Controller) Selecting() bool           { return c.selecting }
func (c *Controller) PendingKey() string        { return c.pendingKey }

// Notice returns and clears the pending user-visible message.
func (c *Controller) Notice() string {
	notice := c.notice
	c.notice = ""
	return notice
}

// Navigate atomically replaces the current view and parameter bag. It is the
// single navigation entry point; every other transition funnels through it.
func (c *Controller) Navigate(view View, params FormParams) {
	c.debug("navigate %s -> %s evidence=%s section=%d", c.view, view, params.EvidenceID, params.InitialSection)
	c.view = view
	c.params = params
}

// GoBack returns to the recorded origin when the current bag carries one,
// otherwise falls back to the record-selection screen.
func (c *Controller) GoBack() {
	if origin := c.params.Origin; origin != nil {
		params := FormParams{}
		if origin.Params != nil {
			params = *origin.Params
		}
		c.Navigate(origin.View, params)
		return
	}
	c.Navigate(ViewRecordSelect, FormParams{})
}

// OpenForm opens an assessment form, resolving edit-vs-create by scanning the
// evidence store for a matching id and type. A missing id opens a blank draft.
// Opening a new MSF while one is in Draft or Submitted redirects to the
// existing record instead.
func (c *Controller) OpenForm(formType portfolio.FormType, params FormParams) {
	formType = portfolio.NormalizeType(formType)

	if params.EvidenceID != "" {
		if _, ok := c.store.GetByType(params.EvidenceID, formType); !ok {
			// Unknown id: fall through to create mode.
			params.EvidenceID = ""
		}
	}

	if formType == portfolio.TypeMSF && params.EvidenceID == "" {
		if existing, ok := c.store.ActiveMSF(); ok {
			params.EvidenceID = existing.ID
			c.notice = "An MSF round is already in progress; opening the existing record."
		}
	}

	c.Navigate(FormView(formType), params)
}

// resolveActiveMSF redirects an id-less MSF patch at the existing active
// round, so no write path can create a second one.
func (c *Controller) resolveActiveMSF(patch portfolio.Patch) portfolio.Patch {
	if patch.ID != "" || portfolio.NormalizeType(patch.Type) != portfolio.TypeMSF {
		return patch
	}
	if existing, ok := c.store.ActiveMSF(); ok {
		patch.ID = existing.ID
		c.notice = "An MSF round is already in progress; saving to the existing record."
	}
	return patch
}

// SaveDraft upserts the patch and keeps the current view, threading the
// (possibly new) evidence id back into the parameter bag.
func (c *Controller) SaveDraft(patch portfolio.Patch) (portfolio.EvidenceItem, error) {
	if patch.ID == "" {
		patch.ID = c.params.EvidenceID
	}
	patch = c.resolveActiveMSF(patch)
	item, err := c.store.Upsert(patch)
	if err != nil {
		c.notice = "Could not save the form. Please try again."
		return portfolio.EvidenceItem{}, err
	}
	c.params.EvidenceID = item.ID
	c.debug("save draft %s type=%s", item.ID, item.Type)
	return item, nil
}

// Submit upserts the patch as Submitted and performs the post-submit
// transition: when a mandatory sub-form context matches the submitted type,
// the new evidence is auto-linked under the recorded requirement key and
// navigation returns to the parent form at the recorded section. Otherwise
// control falls back to the evidence list.
func (c *Controller) Submit(patch portfolio.Patch) (portfolio.EvidenceItem, error) {
	if patch.ID == "" {
		patch.ID = c.params.EvidenceID
	}
	patch = c.resolveActiveMSF(patch)
	if patch.Status == "" {
		patch.Status = portfolio.StatusSubmitted
	}

	item, err := c.store.Upsert(patch)
	if err != nil {
		c.notice = "Could not submit the form. Please try again."
		return portfolio.EvidenceItem{}, err
	}

	if ctx := c.mandatory; ctx != nil && item.Type == ctx.ExpectedType {
		c.links.Link(ctx.RequirementKey, item.ID)
		c.mandatory = nil
		params := ctx.Return.Params
		params.InitialSection = ctx.Return.Section
		params.ItemIndex = ctx.Return.Item
		c.debug("mandatory sub-form %s linked to %s", item.ID, ctx.RequirementKey)
		c.Navigate(ctx.Return.View, params)
		return item, nil
	}

	c.mandatory = nil
	c.Navigate(ViewEvidenceList, FormParams{})
	return item, nil
}

// ViewLinkedEvidence opens an evidence record read-only, regardless of its
// stored status, recording the current view and params as the origin.
func (c *Controller) ViewLinkedEvidence(evidenceID string) error {
	item, ok := c.store.Get(evidenceID)
	if !ok {
		c.notice = "The linked evidence could not be found."
		return fmt.Errorf("view linked evidence %s: %w", evidenceID, ErrEvidenceNotFound)
	}

	originParams := c.params
	c.Navigate(FormView(item.Type), FormParams{
		EvidenceID:     item.ID,
		Level:          item.Level,
		StatusOverride: portfolio.StatusReadOnly,
		Origin:         &Origin{View: c.view, Params: &originParams},
	})
	return nil
}

// BeginLinking enters selection mode for a requirement key: the return target
// is recorded and the evidence browser opens.
func (c *Controller) BeginLinking(requirementKey string, section, item int) error {
	if c.selecting {
		return ErrLinkingInProgress
	}
	c.selecting = true
	c.pendingKey = requirementKey
	c.returnTo = &ReturnTarget{View: c.view, Params: c.params, Section: section, Item: item}
	c.Navigate(ViewEvidenceBrowser, FormParams{})
	return nil
}

// ConfirmLinking unions the selected ids into the pending requirement key and
// returns to the recorded target.
func (c *Controller) ConfirmLinking(evidenceIDs ...string) error {
	if !c.selecting {
		return ErrLinkingNotActive
	}
	c.links.Link(c.pendingKey, evidenceIDs...)
	c.debug("linked %d item(s) to %s", len(evidenceIDs), c.pendingKey)
	c.finishSelection()
	return nil
}

// CancelLinking leaves selection mode without mutating the registry, still
// returning to the recorded target.
func (c *Controller) CancelLinking() error {
	if !c.selecting {
		return ErrLinkingNotActive
	}
	c.finishSelection()
	return nil
}

func (c *Controller) finishSelection() {
	c.selecting = false
	c.pendingKey = ""
	if target := c.returnTo; target != nil {
		c.returnTo = nil
		params := target.Params
		params.InitialSection = target.Section
		params.ItemIndex = target.Item
		c.Navigate(target.View, params)
		return
	}
	c.Navigate(ViewRecordSelect, FormParams{})
}

// RemoveLink removes one evidence id from a requirement key's set.
func (c *Controller) RemoveLink(requirementKey, evidenceID string) {
	c.links.Unlink(requirementKey, evidenceID)
}

// BeginMandatoryForm records the mandatory sub-form context and navigates to
// the required form in create mode.
func (c *Controller) BeginMandatoryForm(expected portfolio.FormType, defaultSubtype, requirementKey string, section, item int) {
	c.mandatory = &MandatoryFormContext{
		ExpectedType:   portfolio.NormalizeType(expected),
		DefaultSubtype: defaultSubtype,
		RequirementKey: requirementKey,
		Return:         ReturnTarget{View: c.view, Params: c.params, Section: section, Item: item},
	}
	c.OpenForm(expected, FormParams{Subtype: defaultSubtype, Level: c.params.Level})
}

// MandatoryContext exposes the in-progress mandatory sub-form flow, if any.
func (c *Controller) MandatoryContext() *MandatoryFormContext {
	return c.mandatory
}

// VisibleLinks returns the link mapping scoped to the current view: EPA forms
// see only their own level's criterion keys, everything else sees the full
// registry.
func (c *Controller) VisibleLinks() map[string][]string {
	if c.view == ViewEPAForm && c.params.Level != "" {
		return c.links.ForEPALevel(c.params.Level)
	}
	return c.links.All()
}

func (c *Controller) debug(format string, args ...any) {
	if c.logf != nil {
		c.logf("workbook: "+format, args...)
	}
}
