package service

import (
	"relawan/internal/registration/models"
	"relawan/internal/registration/wizard"
	"relawan/internal/registry"
)

// View is everything the browser needs to render a wizard.
type View struct {
	WizardID     string               `json:"wizard_id"`
	State        models.State         `json:"state"`
	Step         int                  `json:"step"`
	Draft        DraftView            `json:"draft"`
	Errors       map[string]string    `json:"errors"`
	Notice       string               `json:"notice,omitempty"`
	Submitting   bool                 `json:"submitting"`
	Regions      RegionsView          `json:"regions"`
	Attachment   *AttachmentView      `json:"attachment,omitempty"`
	Registration *models.Registration `json:"registration,omitempty"`
}

// DraftView carries the text attributes under their wire names.
type DraftView struct {
	FullName    string `json:"namaLengkap"`
	Gender      string `json:"jenisKelamin"`
	BirthPlace  string `json:"tempatLahir"`
	BirthDate   string `json:"tanggalLahir"`
	Address     string `json:"alamatDomisili"`
	Citizenship string `json:"kewarganegaraan"`
	Phone       string `json:"nomorTelepon"`
	Email       string `json:"email"`
	RegionID    string `json:"wilayahId"`
}

// RegionsView drives the region selector. It is disabled while loading and
// after a failed fetch.
type RegionsView struct {
	Loading  bool                  `json:"loading"`
	Disabled bool                  `json:"disabled"`
	Failed   bool                  `json:"failed"`
	Options  []models.RegionOption `json:"options"`
}

type AttachmentView struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// SubmitView is a View plus what the submit call did.
type SubmitView struct {
	View
	Outcome wizard.SubmitOutcome `json:"outcome"`
}

// Confirmation is what the confirmation page renders.
type Confirmation struct {
	Completed      bool                 `json:"completed"`
	RegistrationID string               `json:"registration_id,omitempty"`
	Registration   *models.Registration `json:"registration,omitempty"`
}

func buildView(id string, c *wizard.Controller, dir *registry.Directory) View {
	store := c.Store()
	d := store.Draft()
	state := c.State()

	v := View{
		WizardID:     id,
		State:        state,
		Step:         state.Step(),
		Draft:        draftView(d),
		Errors:       store.Errors().Wire(),
		Notice:       c.Notice(),
		Submitting:   state == models.StateSubmitting,
		Regions:      regionsView(dir.Snapshot()),
		Registration: c.Registration(),
	}
	if a := d.Attachment; a != nil {
		v.Attachment = &AttachmentView{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        a.Size,
			PreviewURL:  store.Preview(),
		}
	}
	return v
}

func draftView(d models.Draft) DraftView {
	v := DraftView{
		FullName:    d.FullName,
		Gender:      string(d.Gender),
		BirthPlace:  d.BirthPlace,
		Address:     d.Address,
		Citizenship: string(d.Citizenship),
		Phone:       d.Phone,
		Email:       d.Email,
		RegionID:    d.RegionID,
	}
	if d.HasBirthDate() {
		v.BirthDate = d.BirthDate.Format(models.DateLayout)
	}
	return v
}

func regionsView(snap registry.DirectorySnapshot) RegionsView {
	options := snap.Options
	if options == nil {
		options = []models.RegionOption{}
	}
	return RegionsView{
		Loading:  snap.Loading(),
		Disabled: !snap.Selectable(),
		Failed:   snap.Status == registry.DirectoryFailed,
		Options:  options,
	}
}
