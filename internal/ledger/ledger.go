package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/clu/internal/definition"
	"github.com/temirov/clu/internal/lifecycle"
)

const (
	backupFileTemplateConstant             = "%s.%d.bck"
	backupFileWithSequenceTemplateConstant = "%s.%d-%d.bck"
	temporaryFilePatternSuffixConstant     = ".tmp-*"
	documentFilePermissionsConstant        = 0o644
	backupCreateFlagsConstant              = os.O_CREATE | os.O_EXCL | os.O_WRONLY
	maximumBackupAttemptsConstant          = 100
	ledgerErrorTemplateConstant            = "status ledger %s %s failed: %v"
	unknownTargetTemplateConstant          = "target %q is not part of the definition"
	unknownStatusTemplateConstant          = "target %q has unknown status %q"
	backupExhaustedTemplateConstant        = "no free backup name after %d attempts"
	snapshotTakenLogMessageConstant        = "status document backed up"
	resultRecordedLogMessageConstant       = "target result recorded"
	logFieldBackupPathConstant             = "backup_path"
	logFieldTargetConstant                 = "target"
	logFieldStatusConstant                 = "status"
	logFieldDocumentPathConstant           = "path"
	logFieldSourceExistedConstant          = "source_existed"
	operationSnapshotConstant              = "snapshot"
	operationPersistConstant               = "persist"
	operationLoadConstant                  = "load"
	operationRecordConstant                = "record"
	operationBeginConstant                 = "begin"
)

// LedgerError reports a status document that could not be read or written.
// It is fatal for the run that encounters it.
type LedgerError struct {
	Operation string
	Path      string
	Cause     error
}

// Error describes the failed operation.
func (ledgerError LedgerError) Error() string {
	return fmt.Sprintf(ledgerErrorTemplateConstant, ledgerError.Operation, ledgerError.Path, ledgerError.Cause)
}

// Unwrap exposes the underlying cause.
func (ledgerError LedgerError) Unwrap() error {
	return ledgerError.Cause
}

// Ledger mediates every access to one status document. It is safe for concurrent use.
type Ledger struct {
	logger *zap.Logger
	path   string
	codec  definition.Codec
	clock  lifecycle.Clock

	mutex         sync.Mutex
	document      definition.Document
	snapshotTaken bool
	backupPath    string
}

// New constructs a ledger persisting document at path in the format implied by the path.
func New(logger *zap.Logger, path string, document definition.Document, clock lifecycle.Clock) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = lifecycle.SystemClock{}
	}
	return &Ledger{
		logger:   logger,
		path:     path,
		codec:    definition.CodecForPath(path),
		clock:    clock,
		document: document.Clone(),
	}
}

// Load reads a status document for reporting.
func Load(path string) (definition.Document, error) {
	document, loadError := definition.LoadDocument(path)
	if loadError != nil {
		return definition.Document{}, LedgerError{Operation: operationLoadConstant, Path: path, Cause: loadError}
	}
	for targetName, result := range document.Results {
		if !result.Status.IsKnown() {
			return definition.Document{}, LedgerError{Operation: operationLoadConstant, Path: path, Cause: fmt.Errorf(unknownStatusTemplateConstant, targetName, result.Status)}
		}
	}
	return document, nil
}

// Path returns the canonical document path.
func (ledger *Ledger) Path() string {
	return ledger.path
}

// BackupPath returns the path of the snapshot, or an empty string before Snapshot.
func (ledger *Ledger) BackupPath() string {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	return ledger.backupPath
}

// Snapshot copies the document currently on disk to a sibling backup file.
// A missing document produces an empty backup. Only the first call in a ledger's life writes anything.
func (ledger *Ledger) Snapshot() (string, error) {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	if ledger.snapshotTaken {
		return ledger.backupPath, nil
	}

	contents, readError := os.ReadFile(ledger.path)
	sourceExisted := readError == nil
	if readError != nil && !errors.Is(readError, os.ErrNotExist) {
		return "", LedgerError{Operation: operationSnapshotConstant, Path: ledger.path, Cause: readError}
	}

	backupPath, writeError := ledger.writeBackup(contents)
	if writeError != nil {
		return "", LedgerError{Operation: operationSnapshotConstant, Path: ledger.path, Cause: writeError}
	}
	ledger.snapshotTaken = true
	ledger.backupPath = backupPath
	ledger.logger.Info(snapshotTakenLogMessageConstant,
		zap.String(logFieldDocumentPathConstant, ledger.path),
		zap.String(logFieldBackupPathConstant, backupPath),
		zap.Bool(logFieldSourceExistedConstant, sourceExisted),
	)
	return backupPath, nil
}

// BeginRun stamps the run metadata and persists the document. Earlier results stay in
// place until Record replaces them, so a target the run never reaches keeps its last outcome.
// Results of targets no longer in the definition are dropped.
func (ledger *Ledger) BeginRun(run definition.RunMetadata) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	updated := ledger.document.Clone()
	for targetName := range updated.Results {
		if _, known := updated.Targets[targetName]; !known {
			delete(updated.Results, targetName)
		}
	}
	if len(run.BackupPath) == 0 {
		run.BackupPath = ledger.backupPath
	}
	updated.Run = &run

	if persistError := ledger.persist(updated); persistError != nil {
		return LedgerError{Operation: operationBeginConstant, Path: ledger.path, Cause: persistError}
	}
	ledger.document = updated
	return nil
}

// Record merges the result of one target and persists the whole document.
// Concurrent calls are serialized; the in-memory document changes only when the write succeeds.
func (ledger *Ledger) Record(targetName string, result lifecycle.TargetResult) error {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	if _, known := ledger.document.Targets[targetName]; !known {
		return LedgerError{Operation: operationRecordConstant, Path: ledger.path, Cause: fmt.Errorf(unknownTargetTemplateConstant, targetName)}
	}

	updated := ledger.document.Clone()
	if updated.Results == nil {
		updated.Results = make(map[string]lifecycle.TargetResult, len(updated.Targets))
	}
	updated.Results[targetName] = result.Clone()

	if persistError := ledger.persist(updated); persistError != nil {
		return LedgerError{Operation: operationPersistConstant, Path: ledger.path, Cause: persistError}
	}
	ledger.document = updated
	ledger.logger.Debug(resultRecordedLogMessageConstant,
		zap.String(logFieldTargetConstant, targetName),
		zap.String(logFieldStatusConstant, string(result.Status)),
	)
	return nil
}

// Document returns a copy of the in-memory document.
func (ledger *Ledger) Document() definition.Document {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	return ledger.document.Clone()
}

func (ledger *Ledger) persist(document definition.Document) error {
	encoded, encodeError := ledger.codec.Encode(document)
	if encodeError != nil {
		return encodeError
	}
	return writeFileAtomically(ledger.path, encoded)
}

func (ledger *Ledger) writeBackup(contents []byte) (string, error) {
	timestamp := ledger.clock.Now().Unix()
	for attempt := 0; attempt < maximumBackupAttemptsConstant; attempt++ {
		backupPath := fmt.Sprintf(backupFileTemplateConstant, ledger.path, timestamp)
		if attempt > 0 {
			backupPath = fmt.Sprintf(backupFileWithSequenceTemplateConstant, ledger.path, timestamp, attempt)
		}
		backupFile, openError := os.OpenFile(backupPath, backupCreateFlagsConstant, documentFilePermissionsConstant)
		if errors.Is(openError, os.ErrExist) {
			continue
		}
		if openError != nil {
			return "", openError
		}
		_, writeError := backupFile.Write(contents)
		syncError := backupFile.Sync()
		closeError := backupFile.Close()
		if joinedError := errors.Join(writeError, syncError, closeError); joinedError != nil {
			return "", joinedError
		}
		return backupPath, nil
	}
	return "", fmt.Errorf(backupExhaustedTemplateConstant, maximumBackupAttemptsConstant)
}

// writeFileAtomically replaces path with contents through a synced temporary sibling and a rename.
func writeFileAtomically(path string, contents []byte) error {
	directory, base := filepath.Split(path)
	if len(directory) == 0 {
		directory = "."
	}
	temporaryFile, createError := os.CreateTemp(directory, base+temporaryFilePatternSuffixConstant)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(temporaryPath)
		}
	}()

	_, writeError := temporaryFile.Write(contents)
	syncError := temporaryFile.Sync()
	closeError := temporaryFile.Close()
	if joinedError := errors.Join(writeError, syncError, closeError); joinedError != nil {
		return joinedError
	}
	if chmodError := os.Chmod(temporaryPath, documentFilePermissionsConstant); chmodError != nil {
		return chmodError
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		return renameError
	}
	committed = true
	return nil
}
