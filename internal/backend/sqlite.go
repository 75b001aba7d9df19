package backend

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/annel0/mtworld/internal/vec"
)

// SqliteBackend хранит блоки во встраиваемом однофайловом хранилище
// (формат map.sqlite существующих миров): таблица blocks с колонками
// pos (линейный ключ) и data (сжатый конверт блока).
type SqliteBackend struct {
	db *sql.DB
}

// NewSqliteBackend открывает (или создает) файл базы и при необходимости
// создает схему. Создание схемы идемпотентно.
func NewSqliteBackend(path string) (*SqliteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &Error{Backend: "sqlite", Op: "open", Err: err}
	}

	// СУБД однофайловая: пул соединений только мешает блокировками.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS blocks (
		pos  INT  PRIMARY KEY,
		data BLOB
	)`); err != nil {
		db.Close()
		return nil, &Error{Backend: "sqlite", Op: "create schema", Err: err}
	}

	return &SqliteBackend{db: db}, nil
}

// Get возвращает сырые байты блока по позиции.
func (s *SqliteBackend) Get(ctx context.Context, pos vec.Pos) ([]byte, bool, error) {
	key, err := pos.DatabaseKey()
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE pos = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Backend: "sqlite", Op: "get", Err: err}
	}
	return data, true, nil
}

// Set записывает блок. REPLACE атомарен на уровне движка:
// читатель не увидит частичную запись.
func (s *SqliteBackend) Set(ctx context.Context, pos vec.Pos, data []byte) error {
	key, err := pos.DatabaseKey()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("пустой блок не записывается (позиция %+v)", pos)
	}

	if _, err := s.db.ExecContext(ctx, `REPLACE INTO blocks (pos, data) VALUES (?, ?)`, key, data); err != nil {
		return &Error{Backend: "sqlite", Op: "set", Err: err}
	}
	return nil
}

// Delete удаляет блок; отсутствующая позиция — не ошибка.
func (s *SqliteBackend) Delete(ctx context.Context, pos vec.Pos) error {
	key, err := pos.DatabaseKey()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE pos = ?`, key); err != nil {
		return &Error{Backend: "sqlite", Op: "delete", Err: err}
	}
	return nil
}

// AllPositions перечисляет позиции курсором по колонке ключей,
// не поднимая блобы.
func (s *SqliteBackend) AllPositions(ctx context.Context) <-chan PosResult {
	out := make(chan PosResult)
	go func() {
		defer close(out)

		rows, err := s.db.QueryContext(ctx, `SELECT pos FROM blocks`)
		if err != nil {
			emit(ctx, out, PosResult{Err: &Error{Backend: "sqlite", Op: "all_positions", Err: err}})
			return
		}
		defer rows.Close()

		for rows.Next() {
			var key int64
			if err := rows.Scan(&key); err != nil {
				emit(ctx, out, PosResult{Err: &Error{Backend: "sqlite", Op: "all_positions", Err: err}})
				return
			}
			if !emit(ctx, out, PosResult{Pos: vec.FromDatabaseKey(key)}) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			emit(ctx, out, PosResult{Err: &Error{Backend: "sqlite", Op: "all_positions", Err: err}})
		}
	}()
	return out
}

// Close закрывает файл базы.
func (s *SqliteBackend) Close() error {
	return s.db.Close()
}
