package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"medstock/m/domain"
	"medstock/m/internal/inventory"
)

// Adder is the slice of the ledger the importer needs.
type Adder interface {
	Add(ctx context.Context, ownerID int64, in inventory.NewMedicine) (*domain.Medicine, error)
}

// Result counts what an import did.
type Result struct {
	Imported int
	Skipped  int
}

var header = []string{"name", "quantity", "dosage", "frequency", "notes"}

// LoadMedicinesFile imports the CSV at path into the inventory of the user registered with email.
func LoadMedicinesFile(ctx context.Context, db *sqlx.DB, ledger Adder, log logrus.FieldLogger, path, email string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open medicine csv %s: %w", path, err)
	}
	defer file.Close()

	ownerID, err := lookupOwner(ctx, db, email)
	if err != nil {
		return Result{}, err
	}
	return LoadMedicines(ctx, file, ledger, log, ownerID)
}

// LoadMedicines reads rows of name,quantity,dosage,frequency,notes and adds each one through
// the ledger, so every imported row gets its prescription history entry. Bad rows are logged
// and skipped.
func LoadMedicines(ctx context.Context, r io.Reader, ledger Adder, log logrus.FieldLogger, ownerID int64) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read medicine header: %w", err)
	}
	if !isHeader(first) {
		return Result{}, fmt.Errorf("unexpected medicine header %q, want %q", strings.Join(first, ","), strings.Join(header, ","))
	}

	var res Result
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.WithError(err).WithField("line", line).Warn("unable to read medicine row")
			res.Skipped++
			continue
		}

		in, err := parseRow(record)
		if err != nil {
			log.WithError(err).WithField("line", line).Warn("skipping medicine row")
			res.Skipped++
			continue
		}

		if _, err := ledger.Add(ctx, ownerID, in); err != nil {
			if domain.KindOf(err) == domain.KindStorage {
				return res, err
			}
			log.WithError(err).WithField("line", line).Warn("medicine row rejected")
			res.Skipped++
			continue
		}
		res.Imported++
	}

	log.WithFields(logrus.Fields{"imported": res.Imported, "skipped": res.Skipped}).Info("medicine import finished")
	return res, nil
}

func lookupOwner(ctx context.Context, db *sqlx.DB, email string) (int64, error) {
	var id int64
	query := db.Rebind(`SELECT id FROM users WHERE email = ?`)
	err := db.GetContext(ctx, &id, query, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no user registered with email %q", email)
	}
	if err != nil {
		return 0, fmt.Errorf("look up user %q: %w", email, err)
	}
	return id, nil
}

func isHeader(record []string) bool {
	if len(record) < 2 {
		return false
	}
	for i, col := range record {
		if i >= len(header) || !strings.EqualFold(strings.TrimSpace(col), header[i]) {
			return false
		}
	}
	return true
}

func parseRow(record []string) (inventory.NewMedicine, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	quantity, err := strconv.ParseInt(field(1), 10, 64)
	if err != nil {
		return inventory.NewMedicine{}, fmt.Errorf("quantity %q is not a number", field(1))
	}
	return inventory.NewMedicine{
		Name:      field(0),
		Quantity:  &quantity,
		Dosage:    field(2),
		Frequency: field(3),
		Notes:     field(4),
	}, nil
}
