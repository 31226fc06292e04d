package consent

//go:generate go run github.com/dmarkham/enumer -type Category -trimprefix Category -transform snake-upper -json -text -yaml -output category.gen.go

// Category is the data category a consent covers.
type Category int

const (
	CategoryGeneral Category = iota
	CategoryLabResults
	CategoryImaging
	CategoryPrescriptions
	CategoryMentalHealth
	// CategoryFullRecord matches every category.
	CategoryFullRecord
)

// Covers reports whether a consent for c grants access to want.
func (c Category) Covers(want Category) bool {
	return c == CategoryFullRecord || c == want
}
