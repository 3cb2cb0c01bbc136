package patient

import "context"

type Repository interface {
	// Create inserts the account row without a username and sets p.ID.
	Create(ctx context.Context, p *Patient) error
	SetUsername(ctx context.Context, id int64, username string) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByUsername(ctx context.Context, username string) (*Patient, error)
	// Update writes p and bumps its version, failing with apperr.ErrConflict
	// when p.VersionID is stale.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	// Search lists non-staff accounts matching q (all when q is blank),
	// ordered by id.
	Search(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error)
	CountPatients(ctx context.Context) (int, error)

	CreateDetail(ctx context.Context, d *Detail) error
	GetDetail(ctx context.Context, patientID int64) (*Detail, error)
	UpdateDetail(ctx context.Context, d *Detail) error
}
