package export

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/enterprise-email/platform/config"
	"github.com/enterprise-email/platform/models"
	"github.com/enterprise-email/platform/storage"
)

const exportObjectRetries = 3

// Service implements the ExportService interface
type Service struct {
	db      *pgxpool.Pool
	storage storage.DomainStorageService
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewService creates a new export service
func NewService(
	db *pgxpool.Pool,
	storageSvc storage.DomainStorageService,
	cfg *config.Config,
	logger zerolog.Logger,
) *Service {
	if err := os.MkdirAll(cfg.Export.TempDir, 0755); err != nil {
		logger.Error().Err(err).Str("dir", cfg.Export.TempDir).Msg("Failed to create export temp directory")
	}

	return &Service{
		db:      db,
		storage: storageSvc,
		cfg:     cfg,
		logger:  logger.With().Str("component", "export_service").Logger(),
	}
}

// Ensure Service implements ExportService
var _ storage.ExportService = (*Service)(nil)

// CreateExportJob creates a new export job
func (s *Service) CreateExportJob(ctx context.Context, orgID string, req *models.CreateExportJobRequest) (*models.ExportJob, error) {
	if req.Encrypt && req.RecipientPublicKey == "" {
		return nil, fmt.Errorf("recipient_public_key is required when encrypt is true")
	}
	if req.Encrypt {
		if _, err := decodeRecipientKey(req.RecipientPublicKey); err != nil {
			return nil, fmt.Errorf("invalid recipient_public_key: %w", err)
		}
	}

	id := uuid.New().String()
	now := time.Now()

	job := &models.ExportJob{
		ID:                 id,
		OrgID:              orgID,
		DomainID:           req.DomainID,
		UserID:             req.UserID,
		Format:             req.Format,
		IncludeAttachments: req.IncludeAttachments,
		DateRange:          req.DateRange,
		FolderTypes:        req.FolderTypes,
		Compress:           req.Compress,
		Encrypt:            req.Encrypt,
		RecipientPublicKey: req.RecipientPublicKey,
		Status:             models.ExportStatusPending,
		Progress:           0,
		RequestedBy:        req.RequestedBy,
		CreatedAt:          now,
	}

	query := `
		INSERT INTO export_jobs (
			id, org_id, domain_id, user_id, format, include_attachments,
			date_range_from, date_range_to, folder_types, compress, encrypt,
			recipient_public_key, status, progress, requested_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var dateFrom, dateTo *time.Time
	if req.DateRange != nil {
		dateFrom = &req.DateRange.From
		dateTo = &req.DateRange.To
	}

	_, err := s.db.Exec(ctx, query,
		id,
		orgID,
		req.DomainID,
		nullString(req.UserID),
		req.Format,
		req.IncludeAttachments,
		dateFrom,
		dateTo,
		req.FolderTypes,
		req.Compress,
		req.Encrypt,
		nullString(req.RecipientPublicKey),
		models.ExportStatusPending,
		0,
		req.RequestedBy,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create export job: %w", err)
	}

	s.logger.Info().
		Str("job_id", id).
		Str("domain_id", req.DomainID).
		Str("format", string(req.Format)).
		Bool("compress", req.Compress).
		Bool("encrypt", req.Encrypt).
		Msg("Created export job")

	return job, nil
}

// GetExportJob retrieves an export job by ID
func (s *Service) GetExportJob(ctx context.Context, jobID string) (*models.ExportJob, error) {
	query := `
		SELECT id, org_id, domain_id, user_id, format, include_attachments,
		       date_range_from, date_range_to, folder_types, compress, encrypt,
		       recipient_public_key, status, progress,
		       total_messages, processed_messages, total_size, processed_size,
		       output_key, download_url, expires_at, error_message,
		       requested_by, created_at, started_at, completed_at
		FROM export_jobs
		WHERE id = $1
	`

	var job models.ExportJob
	var userID, outputKey, downloadURL, errorMessage, recipientKey *string
	var expiresAt, startedAt, completedAt *time.Time
	var dateFrom, dateTo *time.Time

	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.OrgID,
		&job.DomainID,
		&userID,
		&job.Format,
		&job.IncludeAttachments,
		&dateFrom,
		&dateTo,
		&job.FolderTypes,
		&job.Compress,
		&job.Encrypt,
		&recipientKey,
		&job.Status,
		&job.Progress,
		&job.TotalMessages,
		&job.ProcessedMessages,
		&job.TotalSize,
		&job.ProcessedSize,
		&outputKey,
		&downloadURL,
		&expiresAt,
		&errorMessage,
		&job.RequestedBy,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get export job: %w", err)
	}

	if userID != nil {
		job.UserID = *userID
	}
	if dateFrom != nil && dateTo != nil {
		job.DateRange = &models.DateRange{From: *dateFrom, To: *dateTo}
	}
	if recipientKey != nil {
		job.RecipientPublicKey = *recipientKey
	}
	if outputKey != nil {
		job.OutputKey = *outputKey
	}
	if downloadURL != nil {
		job.DownloadURL = *downloadURL
	}
	if expiresAt != nil {
		job.ExpiresAt = expiresAt
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if startedAt != nil {
		job.StartedAt = startedAt
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	}

	return &job, nil
}

// CancelExportJob cancels an export job
func (s *Service) CancelExportJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE export_jobs
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ('pending', 'running')
	`
	_, err := s.db.Exec(ctx, query, models.ExportStatusCancelled, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel export job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("Cancelled export job")
	return nil
}

// GetExportJobsForDomain retrieves all export jobs for a domain
func (s *Service) GetExportJobsForDomain(ctx context.Context, domainID string) ([]*models.ExportJob, error) {
	query := `
		SELECT id, org_id, domain_id, user_id, format, include_attachments,
		       status, progress, total_messages, processed_messages,
		       requested_by, created_at, completed_at
		FROM export_jobs
		WHERE domain_id = $1
		ORDER BY created_at DESC
		LIMIT 100
	`

	rows, err := s.db.Query(ctx, query, domainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ExportJob
	for rows.Next() {
		var job models.ExportJob
		var userID *string
		var completedAt *time.Time

		err := rows.Scan(
			&job.ID,
			&job.OrgID,
			&job.DomainID,
			&userID,
			&job.Format,
			&job.IncludeAttachments,
			&job.Status,
			&job.Progress,
			&job.TotalMessages,
			&job.ProcessedMessages,
			&job.RequestedBy,
			&job.CreatedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export job: %w", err)
		}

		if userID != nil {
			job.UserID = *userID
		}
		if completedAt != nil {
			job.CompletedAt = completedAt
		}

		jobs = append(jobs, &job)
	}

	return jobs, nil
}

// ProcessExportJob processes an export job: builds the format-appropriate
// archive, then runs it through the optional compress/encrypt pipeline
// before uploading the final object.
func (s *Service) ProcessExportJob(ctx context.Context, jobID string) error {
	job, err := s.GetExportJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != models.ExportStatusPending {
		return fmt.Errorf("job is not in pending status: %s", job.Status)
	}

	now := time.Now()
	job.Status = models.ExportStatusRunning
	job.StartedAt = &now
	s.updateJobStatus(ctx, job)

	s.logger.Info().
		Str("job_id", jobID).
		Str("domain_id", job.DomainID).
		Str("format", string(job.Format)).
		Msg("Starting export job")

	messages, err := s.getMessagesToExport(ctx, job)
	if err != nil {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = err.Error()
		s.updateJobStatus(ctx, job)
		return err
	}

	job.TotalMessages = int64(len(messages))
	s.updateJobStatus(ctx, job)

	rawPath, rawExt, contentType, err := s.buildArchive(ctx, job, messages)
	if err != nil {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = fmt.Sprintf("failed to build export: %v", err)
		s.updateJobStatus(ctx, job)
		return err
	}
	defer os.Remove(rawPath)

	finalPath := rawPath
	finalExt := rawExt

	if job.Compress {
		compressedPath, err := s.compressFile(finalPath)
		if err != nil {
			job.Status = models.ExportStatusFailed
			job.ErrorMessage = fmt.Sprintf("failed to compress export: %v", err)
			s.updateJobStatus(ctx, job)
			return err
		}
		finalPath = compressedPath
		finalExt += ".gz"
		contentType = "application/gzip"
		defer os.Remove(finalPath)
	}

	if job.Encrypt {
		encryptedPath, err := s.encryptFile(finalPath, job.RecipientPublicKey)
		if err != nil {
			job.Status = models.ExportStatusFailed
			job.ErrorMessage = fmt.Sprintf("failed to encrypt export: %v", err)
			s.updateJobStatus(ctx, job)
			return err
		}
		finalPath = encryptedPath
		finalExt += ".enc"
		contentType = "application/octet-stream"
		defer os.Remove(finalPath)
	}

	fileInfo, err := os.Stat(finalPath)
	if err != nil {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = fmt.Sprintf("failed to stat export output: %v", err)
		s.updateJobStatus(ctx, job)
		return err
	}
	job.TotalSize = fileInfo.Size()

	outputKey := fmt.Sprintf("%s/%s/exports/%s.%s", job.OrgID, job.DomainID, jobID, finalExt)
	uploadFile, err := os.Open(finalPath)
	if err != nil {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = fmt.Sprintf("failed to open export output: %v", err)
		s.updateJobStatus(ctx, job)
		return err
	}
	defer uploadFile.Close()

	if err := s.storage.Put(ctx, outputKey, uploadFile, fileInfo.Size(), contentType, nil); err != nil {
		job.Status = models.ExportStatusFailed
		job.ErrorMessage = fmt.Sprintf("failed to upload export: %v", err)
		s.updateJobStatus(ctx, job)
		return err
	}

	expiresAt := time.Now().Add(s.cfg.Export.URLExpiration)
	downloadURL, err := s.storage.GetPresignedDownloadURL(ctx, outputKey, s.cfg.Export.URLExpiration)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate download URL")
	}

	completedAt := time.Now()
	job.Status = models.ExportStatusCompleted
	job.Progress = 100
	job.OutputKey = outputKey
	job.DownloadURL = downloadURL
	job.ExpiresAt = &expiresAt
	job.CompletedAt = &completedAt
	s.updateJobStatus(ctx, job)

	s.logger.Info().
		Str("job_id", jobID).
		Int64("messages", job.ProcessedMessages).
		Int64("size", job.TotalSize).
		Msg("Completed export job")

	return nil
}

// buildArchive renders the message set into the format-appropriate
// container: mbox is a single concatenated file, json is a single array
// (or a zip when attachments pull in binary parts), eml is always a zip
// of one file per message, pst is a placeholder.
func (s *Service) buildArchive(ctx context.Context, job *models.ExportJob, messages []*models.MessageMetadata) (path, ext, contentType string, err error) {
	switch job.Format {
	case models.ExportFormatMbox:
		return s.buildMbox(ctx, job, messages)
	case models.ExportFormatJSON:
		if job.IncludeAttachments {
			return s.buildZip(ctx, job, messages)
		}
		return s.buildJSONArray(ctx, job, messages)
	case models.ExportFormatPST:
		return s.buildPSTPlaceholder(job)
	default:
		return s.buildZip(ctx, job, messages)
	}
}

func (s *Service) tempPath(job *models.ExportJob, suffix string) string {
	return filepath.Join(s.cfg.Export.TempDir, fmt.Sprintf("%s-%s", job.ID, suffix))
}

func (s *Service) buildZip(ctx context.Context, job *models.ExportJob, messages []*models.MessageMetadata) (string, string, string, error) {
	path := s.tempPath(job, "archive.zip")
	f, err := os.Create(path)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, msg := range messages {
		select {
		case <-ctx.Done():
			zw.Close()
			return "", "", "", ctx.Err()
		default:
		}

		if err := s.exportMessageWithRetry(ctx, zw, job, msg); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to export message after retries")
			continue
		}

		job.ProcessedMessages++
		job.ProcessedSize += msg.Size
		job.Progress = float64(i+1) * 100 / float64(len(messages))
		if i%100 == 0 {
			s.updateJobStatus(ctx, job)
		}
	}
	if err := zw.Close(); err != nil {
		return "", "", "", err
	}

	return path, "zip", "application/zip", nil
}

func (s *Service) buildMbox(ctx context.Context, job *models.ExportJob, messages []*models.MessageMetadata) (string, string, string, error) {
	path := s.tempPath(job, "mailbox.mbox")
	f, err := os.Create(path)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, msg := range messages {
		select {
		case <-ctx.Done():
			return "", "", "", ctx.Err()
		default:
		}

		if err := s.withRetry(func() error {
			reader, _, err := s.storage.GetMessage(ctx, msg.OrgID, msg.DomainID, msg.UserID, msg.MessageID)
			if err != nil {
				return err
			}
			defer reader.Close()

			fmt.Fprintf(w, "From %s %s\n", msg.From, msg.Date.Format(time.ANSIC))
			if _, err := io.Copy(w, reader); err != nil {
				return err
			}
			fmt.Fprintln(w)
			return nil
		}); err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to export message after retries")
			continue
		}

		job.ProcessedMessages++
		job.ProcessedSize += msg.Size
		job.Progress = float64(i+1) * 100 / float64(len(messages))
		if i%100 == 0 {
			s.updateJobStatus(ctx, job)
		}
	}

	if err := w.Flush(); err != nil {
		return "", "", "", err
	}

	return path, "mbox", "application/mbox", nil
}

type jsonExportEntry struct {
	Metadata *models.MessageMetadata `json:"metadata"`
	Content  string                  `json:"content"`
}

func (s *Service) buildJSONArray(ctx context.Context, job *models.ExportJob, messages []*models.MessageMetadata) (string, string, string, error) {
	path := s.tempPath(job, "messages.json")
	f, err := os.Create(path)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.WriteString("[\n")
	encoder := json.NewEncoder(w)

	for i, msg := range messages {
		select {
		case <-ctx.Done():
			return "", "", "", ctx.Err()
		default:
		}

		var entry jsonExportEntry
		err := s.withRetry(func() error {
			reader, _, err := s.storage.GetMessage(ctx, msg.OrgID, msg.DomainID, msg.UserID, msg.MessageID)
			if err != nil {
				return err
			}
			defer reader.Close()

			content, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			entry = jsonExportEntry{Metadata: msg, Content: string(content)}
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to export message after retries")
			continue
		}

		if i > 0 {
			w.WriteString(",\n")
		}
		if err := encoder.Encode(entry); err != nil {
			return "", "", "", err
		}

		job.ProcessedMessages++
		job.ProcessedSize += msg.Size
		job.Progress = float64(i+1) * 100 / float64(len(messages))
		if i%100 == 0 {
			s.updateJobStatus(ctx, job)
		}
	}

	w.WriteString("]\n")
	if err := w.Flush(); err != nil {
		return "", "", "", err
	}

	return path, "json", "application/json", nil
}

func (s *Service) buildPSTPlaceholder(job *models.ExportJob) (string, string, string, error) {
	path := s.tempPath(job, "mailbox.pst")
	if err := os.WriteFile(path, []byte("PST export is not implemented; placeholder only.\n"), 0644); err != nil {
		return "", "", "", err
	}
	job.ProcessedMessages = job.TotalMessages
	job.Progress = 100
	return path, "pst", "application/octet-stream", nil
}

// exportMessageWithRetry writes a single message into a zip archive,
// retrying transient storage errors a bounded number of times.
func (s *Service) exportMessageWithRetry(ctx context.Context, zipWriter *zip.Writer, job *models.ExportJob, msg *models.MessageMetadata) error {
	return s.withRetry(func() error {
		return s.exportMessage(ctx, zipWriter, job, msg)
	})
}

// withRetry runs fn up to exportObjectRetries times with a short fixed
// backoff between attempts, returning the last error if all attempts fail.
func (s *Service) withRetry(fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= exportObjectRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt < exportObjectRetries {
				time.Sleep(200 * time.Millisecond)
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (s *Service) exportMessage(ctx context.Context, zipWriter *zip.Writer, job *models.ExportJob, msg *models.MessageMetadata) error {
	reader, _, err := s.storage.GetMessage(ctx, msg.OrgID, msg.DomainID, msg.UserID, msg.MessageID)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	defer reader.Close()

	filename := fmt.Sprintf("messages/%s/%s.eml", msg.FolderID, msg.MessageID)
	writer, err := zipWriter.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	if job.Format == models.ExportFormatJSON {
		content, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		entry := jsonExportEntry{Metadata: msg, Content: string(content)}
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entry)
	}

	_, err = io.Copy(writer, reader)
	return err
}

// compressFile wraps a file's contents through gzip, writing a sibling
// temp file; the caller is responsible for removing both.
func (s *Service) compressFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	outPath := path + ".gz"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}

	return outPath, nil
}

// encryptedEnvelope is the on-disk framing for a hybrid-encrypted export:
// an ephemeral box keypair wraps a random secretbox key, which in turn
// encrypts the (optionally gzipped) payload.
type encryptedEnvelope struct {
	EphemeralPublicKey string `json:"ephemeral_public_key"`
	WrappedKey         string `json:"wrapped_key"`
	PayloadNonce       string `json:"payload_nonce"`
	Ciphertext         string `json:"ciphertext"`
}

func decodeRecipientKey(hexKey string) (*[32]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected a 32-byte curve25519 key, got %d bytes", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// encryptFile encrypts a file into a new sibling file (path + ".enc"),
// leaving the original untouched, using
// nacl/secretbox for the bulk payload and an anonymous nacl/box seal
// (ephemeral sender keypair) to deliver the secretbox key to the
// recipient's public key.
func (s *Service) encryptFile(path, recipientPublicKeyHex string) (string, error) {
	recipientKey, err := decodeRecipientKey(recipientPublicKeyHex)
	if err != nil {
		return "", err
	}

	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var symmetricKey [32]byte
	if _, err := rand.Read(symmetricKey[:]); err != nil {
		return "", fmt.Errorf("failed to generate symmetric key: %w", err)
	}

	var payloadNonce [24]byte
	if _, err := rand.Read(payloadNonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate payload nonce: %w", err)
	}
	ciphertext := secretbox.Seal(nil, plaintext, &payloadNonce, &symmetricKey)

	ephemeralPub, ephemeralPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	var boxNonce [24]byte
	if _, err := rand.Read(boxNonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate box nonce: %w", err)
	}
	wrappedKey := box.Seal(boxNonce[:], symmetricKey[:], &boxNonce, recipientKey, ephemeralPriv)

	envelope := encryptedEnvelope{
		EphemeralPublicKey: hex.EncodeToString(ephemeralPub[:]),
		WrappedKey:         hex.EncodeToString(wrappedKey),
		PayloadNonce:       hex.EncodeToString(payloadNonce[:]),
		Ciphertext:         hex.EncodeToString(ciphertext),
	}

	outPath := path + ".enc"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := json.NewEncoder(out).Encode(envelope); err != nil {
		return "", err
	}

	return outPath, nil
}

// GetDownloadURL returns the download URL for an export
func (s *Service) GetDownloadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	job, err := s.GetExportJob(ctx, jobID)
	if err != nil {
		return "", time.Time{}, err
	}

	if job.Status != models.ExportStatusCompleted {
		return "", time.Time{}, fmt.Errorf("export not completed")
	}

	if job.ExpiresAt != nil && time.Now().After(*job.ExpiresAt) {
		return "", time.Time{}, fmt.Errorf("export has expired")
	}

	downloadURL, err := s.storage.GetPresignedDownloadURL(ctx, job.OutputKey, s.cfg.Export.URLExpiration)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(s.cfg.Export.URLExpiration)
	return downloadURL, expiresAt, nil
}

// CleanupExpiredExports cleans up expired export files
func (s *Service) CleanupExpiredExports(ctx context.Context) (int, error) {
	query := `
		SELECT id, output_key FROM export_jobs
		WHERE status = 'completed' AND expires_at < $1
	`

	rows, err := s.db.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to query expired exports: %w", err)
	}
	defer rows.Close()

	var cleaned int
	for rows.Next() {
		var jobID, outputKey string
		if err := rows.Scan(&jobID, &outputKey); err != nil {
			continue
		}

		if outputKey != "" {
			if err := s.storage.Delete(ctx, outputKey); err != nil {
				s.logger.Error().Err(err).Str("key", outputKey).Msg("Failed to delete expired export")
				continue
			}
		}

		_, err := s.db.Exec(ctx,
			"UPDATE export_jobs SET status = $1 WHERE id = $2",
			models.ExportStatusExpired, jobID)
		if err != nil {
			continue
		}

		cleaned++
	}

	if cleaned > 0 {
		s.logger.Info().Int("count", cleaned).Msg("Cleaned up expired exports")
	}

	return cleaned, nil
}

// getMessagesToExport retrieves messages for export
func (s *Service) getMessagesToExport(ctx context.Context, job *models.ExportJob) ([]*models.MessageMetadata, error) {
	query := `
		SELECT id, storage_key, org_id, domain_id, user_id, mailbox_id,
		       folder_id, subject, "from", "to", date, size, has_attachments
		FROM message_metadata
		WHERE domain_id = $1
	`
	args := []interface{}{job.DomainID}
	argNum := 2

	if job.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, job.UserID)
		argNum++
	}

	if job.DateRange != nil {
		query += fmt.Sprintf(" AND date >= $%d AND date <= $%d", argNum, argNum+1)
		args = append(args, job.DateRange.From, job.DateRange.To)
		argNum += 2
	}

	query += " ORDER BY date ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.MessageMetadata
	for rows.Next() {
		var msg models.MessageMetadata
		var storageKey string
		err := rows.Scan(
			&msg.MessageID,
			&storageKey,
			&msg.OrgID,
			&msg.DomainID,
			&msg.UserID,
			&msg.MailboxID,
			&msg.FolderID,
			&msg.Subject,
			&msg.From,
			&msg.To,
			&msg.Date,
			&msg.Size,
			&msg.HasAttachments,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, nil
}

func (s *Service) updateJobStatus(ctx context.Context, job *models.ExportJob) {
	query := `
		UPDATE export_jobs SET
			status = $1, progress = $2, total_messages = $3, processed_messages = $4,
			total_size = $5, processed_size = $6, output_key = $7, download_url = $8,
			expires_at = $9, error_message = $10, started_at = $11, completed_at = $12
		WHERE id = $13
	`
	_, err := s.db.Exec(ctx, query,
		job.Status,
		job.Progress,
		job.TotalMessages,
		job.ProcessedMessages,
		job.TotalSize,
		job.ProcessedSize,
		nullString(job.OutputKey),
		nullString(job.DownloadURL),
		job.ExpiresAt,
		nullString(job.ErrorMessage),
		job.StartedAt,
		job.CompletedAt,
		job.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update job status")
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
