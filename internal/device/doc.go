// Package device provides the device registry and inventory for the
// automation service.
//
// A Device is anything the automation engine can switch on or off: a light,
// a thermostat or a plain appliance. The package has three parts:
//
//   - Registry (registry.go): the process-wide, mutex-guarded map of live
//     devices. It only hands out copies, so every read reflects the current
//     entry and no caller can hold a stale pointer.
//   - Repository (repository.go): SQLite persistence of the inventory
//     (identity, name, type). Link state is not stored here.
//   - HistoryRepository (history.go): the transition_history audit trail of
//     applied on/off changes.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	reg := device.Default()
//	if err := reg.Load(ctx, repo); err != nil {
//	    return err
//	}
//
//	err := reg.Update("L1", func(d *device.Device) error {
//	    d.On = true
//	    return nil
//	})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Update runs its callback
// with the registry write lock held, so callbacks must not call back into
// the same Registry.
package device
