package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/kilohq/kilo/internal/kiloerr"
	"github.com/kilohq/kilo/pkg/models"
)

type pgToolStore struct {
	db *sql.DB
}

const toolColumns = `id, bot_id, name, base_url, auth_type, auth_blob, endpoints, active, created_at, updated_at`

func (s *pgToolStore) Create(ctx context.Context, tool *models.ToolEntry) error {
	if tool == nil || tool.ID == "" {
		return kiloerr.New(kiloerr.CodeDatabase, "tool is required")
	}
	auth, endpoints, err := encodeToolParts(tool)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tools (`+toolColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tool.ID, tool.BotID, tool.Name, tool.BaseURL, string(tool.AuthType),
		auth, endpoints, tool.Active, tool.CreatedAt, tool.UpdatedAt,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "insert tool")
	}
	return nil
}

func (s *pgToolStore) Get(ctx context.Context, id string) (*models.ToolEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)
	return scanTool(row)
}

func (s *pgToolStore) GetByName(ctx context.Context, botID, name string) (*models.ToolEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE bot_id = $1 AND name = $2`, botID, name)
	return scanTool(row)
}

func (s *pgToolStore) ListActive(ctx context.Context, botID string) ([]*models.ToolEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE bot_id = $1 AND active ORDER BY name`, botID)
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "list tools")
	}
	defer rows.Close()

	var tools []*models.ToolEntry
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func (s *pgToolStore) Update(ctx context.Context, tool *models.ToolEntry) error {
	auth, endpoints, err := encodeToolParts(tool)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tools SET name = $2, base_url = $3, auth_type = $4, auth_blob = $5,
			endpoints = $6, active = $7, updated_at = now()
		 WHERE id = $1`,
		tool.ID, tool.Name, tool.BaseURL, string(tool.AuthType), auth, endpoints, tool.Active,
	)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "update tool")
	}
	return requireRow(res, kiloerr.CodeToolNotFound, "tool not found")
}

func (s *pgToolStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return kiloerr.Wrap(err, kiloerr.CodeDatabase, "delete tool")
	}
	return requireRow(res, kiloerr.CodeToolNotFound, "tool not found")
}

func encodeToolParts(tool *models.ToolEntry) (auth, endpoints []byte, err error) {
	if tool.Auth != nil {
		auth, err = json.Marshal(tool.Auth)
		if err != nil {
			return nil, nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "encode auth blob")
		}
	}
	endpoints, err = json.Marshal(tool.Endpoints)
	if err != nil {
		return nil, nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "encode endpoints")
	}
	return auth, endpoints, nil
}

func scanTool(row rowScanner) (*models.ToolEntry, error) {
	var tool models.ToolEntry
	var authType string
	var auth, endpoints []byte

	err := row.Scan(&tool.ID, &tool.BotID, &tool.Name, &tool.BaseURL, &authType,
		&auth, &endpoints, &tool.Active, &tool.CreatedAt, &tool.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, kiloerr.New(kiloerr.CodeToolNotFound, "tool not found")
	}
	if err != nil {
		return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "scan tool")
	}

	tool.AuthType = models.AuthType(authType)
	if len(auth) > 0 {
		tool.Auth = &models.EncryptedBlob{}
		if err := json.Unmarshal(auth, tool.Auth); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "decode auth blob")
		}
	}
	if len(endpoints) > 0 {
		if err := json.Unmarshal(endpoints, &tool.Endpoints); err != nil {
			return nil, kiloerr.Wrap(err, kiloerr.CodeDatabase, "decode endpoints")
		}
	}
	return &tool, nil
}
