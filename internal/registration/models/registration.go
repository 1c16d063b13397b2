package models

import "time"

// RegionOption is one selectable entry of the region directory.
type RegionOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registration is the record the registry returns after creation and on
// read-by-id. Fields echo the submitted draft.
type Registration struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	FullName       string    `json:"namaLengkap,omitempty"`
	Gender         string    `json:"jenisKelamin,omitempty"`
	BirthPlace     string    `json:"tempatLahir,omitempty"`
	BirthDate      string    `json:"tanggalLahir,omitempty"`
	Address        string    `json:"alamatDomisili,omitempty"`
	Citizenship    string    `json:"kewarganegaraan,omitempty"`
	Phone          string    `json:"nomorTelepon,omitempty"`
	Email          string    `json:"email,omitempty"`
	RegionID       string    `json:"wilayahId,omitempty"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// StatusPending is the status the registry assigns to new registrations.
const StatusPending = "PENDING"
