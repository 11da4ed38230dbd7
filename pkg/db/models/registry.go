package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and SQLite dev mode.
func All() []any {
	return []any{
		&Supplier{},
		&ProductSupplierLink{},
		&SupplierOrder{},
		&AutomationRule{},
		&CatalogProduct{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
