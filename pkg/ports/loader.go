package ports

// SheetLoader defines how the engine retrieves requestsheets.
// This allows the storage layer (file system, memory) to be decoupled.
type SheetLoader interface {
	// GetSheet retrieves the raw definition of a sheet by name.
	// It returns the raw bytes (which the compiler will parse) or domain.ErrSheetNotFound.
	GetSheet(name string) ([]byte, error)

	// ListSheets returns the names of all sheets available to the loader.
	ListSheets() ([]string, error)
}
