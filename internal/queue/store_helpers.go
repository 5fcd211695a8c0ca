package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, stage, batch_index, begin_id, end_id, status, token, handle, output_path, log_path, attempts, error_message, created_at, updated_at"

const failureColumns = "id, stage, batch_index, begin_id, end_id, attempt, token, log_path, message, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		statusStr    string
		handle       sql.NullString
		outputPath   sql.NullString
		logPath      sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.Stage,
		&job.BatchIndex,
		&job.BeginID,
		&job.EndID,
		&statusStr,
		&job.Token,
		&handle,
		&outputPath,
		&logPath,
		&job.Attempts,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(statusStr)
	job.Handle = handle.String
	job.OutputPath = outputPath.String
	job.LogPath = logPath.String
	job.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return &job, nil
}

func scanFailure(scanner rowScanner) (*Failure, error) {
	var (
		failure    Failure
		token      sql.NullString
		logPath    sql.NullString
		message    sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(
		&failure.ID,
		&failure.Stage,
		&failure.BatchIndex,
		&failure.BeginID,
		&failure.EndID,
		&failure.Attempt,
		&token,
		&logPath,
		&message,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	failure.Token = token.String
	failure.LogPath = logPath.String
	failure.Message = message.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		failure.CreatedAt = created
	}
	return &failure, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
