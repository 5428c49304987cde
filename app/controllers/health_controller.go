package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
)

var healthTables = []string{"payments", "provider_payments", "webhook_events"}

// HandleHealthz is the liveness probe.
func (a *API) HandleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok": true,
		"env": fiber.Map{
			"PORT": a.portValue(),
			"DB":   a.dbName,
		},
	})
}

// HandleDBHealth reports the tables, their columns and the payment count.
func (a *API) HandleDBHealth(c *fiber.Ctx) error {
	if a.db == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "Database unavailable"})
	}

	migrator := a.db.Migrator()
	tables, err := migrator.GetTables()
	if err != nil {
		log.Errorf("[Health] list tables: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	columns := fiber.Map{}
	for _, table := range healthTables {
		if !present[table] {
			continue
		}
		cols, err := migrator.ColumnTypes(table)
		if err != nil {
			log.Errorf("[Health] columns of %s: %v", table, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
		}
		names := make([]string, 0, len(cols))
		for _, col := range cols {
			names = append(names, col.Name())
		}
		columns[table] = names
	}

	var count interface{}
	if present["payments"] {
		var n int64
		if err := a.db.Model(&models.Payment{}).Count(&n).Error; err != nil {
			log.Errorf("[Health] count payments: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": err.Error()})
		}
		count = n
	}

	return c.JSON(fiber.Map{
		"ok":             true,
		"tables":         tables,
		"columns":        columns,
		"payments_count": count,
	})
}
