package commands

import "fmt"

// MigrateCmd implements the 'migrate' command. Opening the store applies
// pending migrations; this reports the resulting schema version.
type MigrateCmd struct{}

func (m *MigrateCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.Migrate(); err != nil {
		return err
	}
	version, dirty, err := s.store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database %s at schema version %d (dirty=%t)\n", s.cfg.Database, version, dirty)
	return nil
}
