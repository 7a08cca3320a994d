package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/enterprise-email/platform/config"
	"github.com/enterprise-email/platform/models"
	"github.com/enterprise-email/platform/storage"
)

// DeletionService implements the DeletionService interface
type DeletionService struct {
	db        *pgxpool.Pool
	storage   storage.DomainStorageService
	quotaSvc  storage.QuotaService
	retention storage.RetentionService
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewDeletionService creates a new deletion service
func NewDeletionService(
	db *pgxpool.Pool,
	storageSvc storage.DomainStorageService,
	quotaSvc storage.QuotaService,
	retentionSvc storage.RetentionService,
	cfg *config.Config,
	logger zerolog.Logger,
) *DeletionService {
	return &DeletionService{
		db:        db,
		storage:   storageSvc,
		quotaSvc:  quotaSvc,
		retention: retentionSvc,
		cfg:       cfg,
		logger:    logger.With().Str("component", "deletion_service").Logger(),
	}
}

// Ensure DeletionService implements storage.DeletionService
var _ storage.DeletionService = (*DeletionService)(nil)

// CreateDeletionJob creates a new deletion job
func (s *DeletionService) CreateDeletionJob(ctx context.Context, orgID string, req *models.CreateDeletionJobRequest) (*models.DeletionJob, error) {
	id := uuid.New().String()
	now := time.Now()

	// Determine if approval is needed (for audit purposes)
	status := models.DeletionStatusApprovalNeeded
	if req.Reason == "account_deletion" || req.Reason == "user_request" {
		status = models.DeletionStatusPending
	}

	job := &models.DeletionJob{
		ID:               id,
		OrgID:            orgID,
		DomainID:         req.DomainID,
		UserID:           req.UserID,
		Status:           status,
		Reason:           req.Reason,
		Progress:         0,
		ClearSearchIndex: req.ClearSearchIndex,
		RequestedBy:      req.RequestedBy,
		CreatedAt:        now,
	}

	query := `
		INSERT INTO deletion_jobs (
			id, org_id, domain_id, user_id, status, reason, progress,
			clear_search_index, requested_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Exec(ctx, query,
		id,
		orgID,
		req.DomainID,
		nullString(req.UserID),
		status,
		req.Reason,
		0,
		req.ClearSearchIndex,
		req.RequestedBy,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deletion job: %w", err)
	}

	s.logger.Info().
		Str("job_id", id).
		Str("domain_id", req.DomainID).
		Str("reason", req.Reason).
		Str("status", string(status)).
		Msg("Created deletion job")

	return job, nil
}

// GetDeletionJob retrieves a deletion job by ID
func (s *DeletionService) GetDeletionJob(ctx context.Context, jobID string) (*models.DeletionJob, error) {
	query := `
		SELECT id, org_id, domain_id, user_id, status, reason, progress,
		       total_messages, deleted_messages, total_attachments, deleted_attachments,
		       total_size, deleted_size, clear_search_index, search_index_cleared,
		       error_message, requested_by, approved_by, created_at, started_at, completed_at
		FROM deletion_jobs
		WHERE id = $1
	`

	var job models.DeletionJob
	var userID, errorMessage, approvedBy *string
	var startedAt, completedAt *time.Time

	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.OrgID,
		&job.DomainID,
		&userID,
		&job.Status,
		&job.Reason,
		&job.Progress,
		&job.TotalMessages,
		&job.DeletedMessages,
		&job.TotalAttachments,
		&job.DeletedAttachments,
		&job.TotalSize,
		&job.DeletedSize,
		&job.ClearSearchIndex,
		&job.SearchIndexCleared,
		&errorMessage,
		&job.RequestedBy,
		&approvedBy,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get deletion job: %w", err)
	}

	if userID != nil {
		job.UserID = *userID
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	if approvedBy != nil {
		job.ApprovedBy = *approvedBy
	}
	if startedAt != nil {
		job.StartedAt = startedAt
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	}

	return &job, nil
}

// ApproveDeletionJob approves a deletion job. Approving an already-approved
// (or already further-along) job is a no-op rather than an error, so a
// retried approval call from a client is safe to repeat.
func (s *DeletionService) ApproveDeletionJob(ctx context.Context, jobID string, approvedBy string) error {
	existing, err := s.GetDeletionJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch existing.Status {
	case models.DeletionStatusApproved, models.DeletionStatusRunning, models.DeletionStatusCompleted:
		s.logger.Info().
			Str("job_id", jobID).
			Str("status", string(existing.Status)).
			Msg("Deletion job already approved; treating approval as a no-op")
		return nil
	case models.DeletionStatusApprovalNeeded:
		// falls through to perform the approval below
	default:
		return fmt.Errorf("job is not pending approval: %s", existing.Status)
	}

	query := `
		UPDATE deletion_jobs
		SET status = $1, approved_by = $2
		WHERE id = $3 AND status = 'approval_needed'
	`
	result, err := s.db.Exec(ctx, query, models.DeletionStatusApproved, approvedBy, jobID)
	if err != nil {
		return fmt.Errorf("failed to approve deletion job: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Lost a race with a concurrent approval; the job is already approved.
		return nil
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("approved_by", approvedBy).
		Msg("Approved deletion job")

	return nil
}

// CancelDeletionJob cancels a deletion job
func (s *DeletionService) CancelDeletionJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE deletion_jobs 
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ('pending', 'approval_needed', 'approved')
	`
	_, err := s.db.Exec(ctx, query, models.DeletionStatusCancelled, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to cancel deletion job: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("Cancelled deletion job")
	return nil
}

// ProcessDeletionJob processes a deletion job
func (s *DeletionService) ProcessDeletionJob(ctx context.Context, jobID string) error {
	job, err := s.GetDeletionJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.Status != models.DeletionStatusPending && job.Status != models.DeletionStatusApproved {
		return fmt.Errorf("job is not ready for processing: %s", job.Status)
	}

	// Update status to running
	now := time.Now()
	job.Status = models.DeletionStatusRunning
	job.StartedAt = &now
	s.updateJobStatus(ctx, job)

	s.logger.Info().
		Str("job_id", jobID).
		Str("domain_id", job.DomainID).
		Str("reason", job.Reason).
		Msg("Starting deletion job")

	// Get prefix for deletion
	var prefix string
	if job.UserID != "" {
		prefix = fmt.Sprintf("%s/%s/%s/", job.OrgID, job.DomainID, job.UserID)
	} else {
		prefix = fmt.Sprintf("%s/%s/", job.OrgID, job.DomainID)
	}

	// List all objects
	objects, err := s.storage.ListAll(ctx, prefix)
	if err != nil {
		job.Status = models.DeletionStatusFailed
		job.ErrorMessage = fmt.Sprintf("failed to list objects: %v", err)
		s.updateJobStatus(ctx, job)
		return err
	}

	// Count totals
	for _, obj := range objects {
		job.TotalSize += obj.Size
		if isMessage(obj.Key) {
			job.TotalMessages++
		} else if isAttachment(obj.Key) {
			job.TotalAttachments++
		}
	}
	s.updateJobStatus(ctx, job)

	// Delete objects in batches. batchObjects tracks batchKeys in lockstep so
	// that objects skipped for a legal hold never throw off the size/count
	// accounting for a batch.
	batchSize := 100
	batchKeys := make([]string, 0, batchSize)
	batchObjects := make([]*models.StorageObject, 0, batchSize)

	flushBatch := func() {
		if len(batchKeys) == 0 {
			return
		}
		deleted, errors := s.storage.DeleteMultiple(ctx, batchKeys)
		if len(errors) > 0 {
			s.logger.Error().
				Int("deleted", deleted).
				Int("errors", len(errors)).
				Msg("Batch deletion had errors")
		}

		for _, obj := range batchObjects[:deleted] {
			job.DeletedSize += obj.Size
			if isMessage(obj.Key) {
				job.DeletedMessages++
			} else if isAttachment(obj.Key) {
				job.DeletedAttachments++
			}
		}

		batchKeys = batchKeys[:0]
		batchObjects = batchObjects[:0]
	}

	for i, obj := range objects {
		select {
		case <-ctx.Done():
			job.Status = models.DeletionStatusCancelled
			s.updateJobStatus(ctx, job)
			return ctx.Err()
		default:
		}

		if held, holdID := s.checkObjectHold(ctx, job, obj); held {
			s.logDeletionAuditSkippedHold(ctx, job, obj, holdID)
			job.Progress = float64(i+1) * 100 / float64(len(objects))
			continue
		}

		batchKeys = append(batchKeys, obj.Key)
		batchObjects = append(batchObjects, obj)

		// Log audit entry
		s.logDeletionAudit(ctx, job, obj)

		if len(batchKeys) >= batchSize || i == len(objects)-1 {
			flushBatch()
			job.Progress = float64(i+1) * 100 / float64(len(objects))
			s.updateJobStatus(ctx, job)
		}
	}

	// Flush a partial batch left behind when the last objects were held.
	if len(batchKeys) > 0 {
		flushBatch()
		s.updateJobStatus(ctx, job)
	}

	// Clear search index if requested
	if job.ClearSearchIndex {
		if err := s.clearSearchIndex(ctx, job); err != nil {
			s.logger.Error().Err(err).Msg("Failed to clear search index")
		} else {
			job.SearchIndexCleared = true
		}
	}

	// Update quotas
	s.updateQuotasAfterDeletion(ctx, job)

	// Mark as completed
	completedAt := time.Now()
	job.Status = models.DeletionStatusCompleted
	job.Progress = 100
	job.CompletedAt = &completedAt
	s.updateJobStatus(ctx, job)

	s.logger.Info().
		Str("job_id", jobID).
		Int64("messages_deleted", job.DeletedMessages).
		Int64("attachments_deleted", job.DeletedAttachments).
		Int64("bytes_deleted", job.DeletedSize).
		Msg("Completed deletion job")

	return nil
}

// DeleteDomainData creates and immediately processes a domain deletion job
func (s *DeletionService) DeleteDomainData(ctx context.Context, orgID, domainID string) (*models.DeletionJob, error) {
	job, err := s.CreateDeletionJob(ctx, orgID, &models.CreateDeletionJobRequest{
		DomainID:         domainID,
		Reason:           "domain_deletion",
		ClearSearchIndex: true,
		RequestedBy:      "system",
	})
	if err != nil {
		return nil, err
	}

	// Auto-approve for system deletions
	if job.Status == models.DeletionStatusApprovalNeeded {
		if err := s.ApproveDeletionJob(ctx, job.ID, "system"); err != nil {
			return nil, err
		}
	}

	if err := s.ProcessDeletionJob(ctx, job.ID); err != nil {
		return nil, err
	}

	return s.GetDeletionJob(ctx, job.ID)
}

// DeleteUserData creates and immediately processes a user deletion job
func (s *DeletionService) DeleteUserData(ctx context.Context, orgID, domainID, userID string) (*models.DeletionJob, error) {
	job, err := s.CreateDeletionJob(ctx, orgID, &models.CreateDeletionJobRequest{
		DomainID:         domainID,
		UserID:           userID,
		Reason:           "user_deletion",
		ClearSearchIndex: true,
		RequestedBy:      "system",
	})
	if err != nil {
		return nil, err
	}

	// Auto-approve for system deletions
	if job.Status == models.DeletionStatusApprovalNeeded {
		if err := s.ApproveDeletionJob(ctx, job.ID, "system"); err != nil {
			return nil, err
		}
	}

	if err := s.ProcessDeletionJob(ctx, job.ID); err != nil {
		return nil, err
	}

	return s.GetDeletionJob(ctx, job.ID)
}

// GetDeletionAuditLog retrieves the audit log for a deletion job
func (s *DeletionService) GetDeletionAuditLog(ctx context.Context, jobID string) ([]*models.DeletionAuditLog, error) {
	query := `
		SELECT id, job_id, org_id, domain_id, user_id, event, actor, object_type,
		       object_id, storage_key, size, detail, reason, requested_by, deleted_at
		FROM deletion_audit_logs
		WHERE job_id = $1
		ORDER BY deleted_at ASC
	`

	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deletion audit log: %w", err)
	}
	defer rows.Close()

	var logs []*models.DeletionAuditLog
	for rows.Next() {
		var log models.DeletionAuditLog
		var userID, detail *string

		err := rows.Scan(
			&log.ID,
			&log.JobID,
			&log.OrgID,
			&log.DomainID,
			&userID,
			&log.Event,
			&log.Actor,
			&log.ObjectType,
			&log.ObjectID,
			&log.StorageKey,
			&log.Size,
			&detail,
			&log.Reason,
			&log.RequestedBy,
			&log.DeletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if userID != nil {
			log.UserID = *userID
		}
		if detail != nil {
			log.Detail = *detail
		}

		logs = append(logs, &log)
	}

	return logs, nil
}

func (s *DeletionService) updateJobStatus(ctx context.Context, job *models.DeletionJob) {
	query := `
		UPDATE deletion_jobs SET
			status = $1, progress = $2, total_messages = $3, deleted_messages = $4,
			total_attachments = $5, deleted_attachments = $6, total_size = $7,
			deleted_size = $8, search_index_cleared = $9, error_message = $10,
			started_at = $11, completed_at = $12
		WHERE id = $13
	`
	_, err := s.db.Exec(ctx, query,
		job.Status,
		job.Progress,
		job.TotalMessages,
		job.DeletedMessages,
		job.TotalAttachments,
		job.DeletedAttachments,
		job.TotalSize,
		job.DeletedSize,
		job.SearchIndexCleared,
		nullString(job.ErrorMessage),
		job.StartedAt,
		job.CompletedAt,
		job.ID,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to update deletion job status")
	}
}

func (s *DeletionService) logDeletionAudit(ctx context.Context, job *models.DeletionJob, obj *models.StorageObject) {
	s.writeAuditEvent(ctx, job, models.DeletionEventObjectDeleted, obj, "")
}

// checkObjectHold re-checks legal hold status for a single object immediately
// before it would be deleted. The object's own path component identifies the
// user it belongs to, which may differ from job.UserID on a domain-wide job.
func (s *DeletionService) checkObjectHold(ctx context.Context, job *models.DeletionJob, obj *models.StorageObject) (bool, string) {
	if s.retention == nil {
		return false, ""
	}

	userID := job.UserID
	if userID == "" {
		userID = extractUserIDFromKey(obj.Key)
	}

	held, err := s.retention.IsUnderLegalHold(ctx, job.OrgID, job.DomainID, userID, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Str("key", obj.Key).Msg("Legal hold check failed; deleting object conservatively skipped")
		return true, "hold-check-error"
	}
	if !held {
		return false, ""
	}

	holds, err := s.retention.GetLegalHolds(ctx, job.OrgID)
	if err != nil {
		return true, "unknown"
	}
	for _, h := range holds {
		if h.IsMessageUnderHold(job.DomainID, userID, time.Now()) {
			return true, h.ID
		}
	}
	return true, "unknown"
}

func (s *DeletionService) logDeletionAuditSkippedHold(ctx context.Context, job *models.DeletionJob, obj *models.StorageObject, holdID string) {
	s.writeAuditEvent(ctx, job, models.DeletionEventSkippedHold, obj, holdID)
}

func (s *DeletionService) writeAuditEvent(ctx context.Context, job *models.DeletionJob, event models.DeletionAuditEvent, obj *models.StorageObject, detail string) {
	id := uuid.New().String()
	objectType := getObjectType(obj.Key)
	objectID := extractObjectID(obj.Key)

	query := `
		INSERT INTO deletion_audit_logs (
			id, job_id, org_id, domain_id, user_id, event, actor, object_type,
			object_id, storage_key, size, detail, reason, requested_by, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.db.Exec(ctx, query,
		id,
		job.ID,
		job.OrgID,
		job.DomainID,
		nullString(job.UserID),
		event,
		job.RequestedBy,
		objectType,
		objectID,
		obj.Key,
		obj.Size,
		nullString(detail),
		job.Reason,
		job.RequestedBy,
		time.Now(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("key", obj.Key).Str("event", string(event)).Msg("Failed to log deletion audit event")
	}
}

func (s *DeletionService) clearSearchIndex(ctx context.Context, job *models.DeletionJob) error {
	// This would integrate with the search service to clear indexed data
	// For now, just log the intent
	s.logger.Info().
		Str("domain_id", job.DomainID).
		Str("user_id", job.UserID).
		Msg("Would clear search index")
	return nil
}

func (s *DeletionService) updateQuotasAfterDeletion(ctx context.Context, job *models.DeletionJob) {
	if s.quotaSvc == nil {
		return
	}

	// Recalculate domain usage
	if err := s.quotaSvc.RecalculateDomainUsage(ctx, job.DomainID); err != nil {
		s.logger.Error().Err(err).Str("domain_id", job.DomainID).Msg("Failed to recalculate domain quota")
	}
}

func isMessage(key string) bool {
	return contains(key, "/messages/")
}

func isAttachment(key string) bool {
	return contains(key, "/attachments/")
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func getObjectType(key string) string {
	if isMessage(key) {
		return "message"
	}
	if isAttachment(key) {
		return "attachment"
	}
	return "other"
}

func extractObjectID(key string) string {
	// Extract the last component of the key as the object ID
	lastSlash := len(key) - 1
	for ; lastSlash >= 0 && key[lastSlash] != '/'; lastSlash-- {
	}
	if lastSlash < len(key)-1 {
		return key[lastSlash+1:]
	}
	return key
}

// extractUserIDFromKey pulls the user id component out of a storage key of
// the form orgID/domainID/userID/... (see models.NewAttachmentKey and
// models.NewMessageKey), returning "" if the key is too short to contain one.
func extractUserIDFromKey(key string) string {
	start := 0
	segment := 0
	for i := 0; i <= len(key); i++ {
		if i == len(key) || key[i] == '/' {
			if segment == 2 {
				return key[start:i]
			}
			segment++
			start = i + 1
		}
	}
	return ""
}
