package auth

// Account is a login identity. Exactly one of ScholarID or FacultyID is
// set, linking the account to its portal profile.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	ScholarID    int64
	FacultyID    int64
}
