package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gptcli/agent"
	"gptcli/storage"
)

// DefaultSessionName is opened when neither a flag nor the current-session
// pointer names one.
const DefaultSessionName = "default"

// openSession makes name the current session, creating it when it does not
// exist. An empty name resumes the last used session.
func (a *App) openSession(name string) error {
	if name == "" {
		current, err := a.sessions.LoadCurrentSessionName()
		if err != nil {
			a.logger.Warn("failed to read current session pointer", zap.Error(err))
		}
		name = current
	}
	if name == "" {
		name = DefaultSessionName
	}

	session, err := a.sessions.LoadByName(name)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		session = storage.NewSession(name, a.modelName, a.contextLength)
		if err := a.sessions.Save(session); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		a.logger.Info("created session", zap.String("name", name), zap.String("id", session.ID))
	case err != nil:
		return fmt.Errorf("failed to load session %q: %w", name, err)
	}

	locked, pid, err := a.sessions.CheckSessionLock(session.ID)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: %q (pid %d)", ErrSessionLocked, name, pid)
	}
	if err := a.sessions.LockSession(session.ID); err != nil {
		a.logger.Warn("failed to lock session", zap.String("id", session.ID), zap.Error(err))
	} else {
		a.locked = true
	}

	a.setSession(session)
	if err := a.sessions.SaveCurrentSessionName(session.Name); err != nil {
		a.logger.Warn("failed to save current session pointer", zap.Error(err))
	}
	return nil
}

// setSession installs session as the current one without touching locks.
func (a *App) setSession(session *storage.Session) {
	a.session = session
	a.transcript = agent.NewTranscript(session.Messages)
	if session.ContextLength > 0 {
		a.contextLength = session.ContextLength
	}
	if a.history != nil {
		a.engine.SetHistory(a.history.ForSession(session.ID))
	} else {
		a.engine.SetHistory(nil)
	}
	a.attachments = nil
	a.lastCode = nil
	a.logger.Debug("session active",
		zap.String("name", session.Name),
		zap.String("id", session.ID),
		zap.Int("messages", len(session.Messages)))
}

// switchSession saves and backs up the current session, releases it and
// opens name.
func (a *App) switchSession(name string) error {
	if name == a.session.Name {
		return fmt.Errorf("already in session %q", name)
	}
	prev := a.session
	if err := a.save(); err != nil {
		return err
	}
	if len(prev.Messages) > 0 {
		if _, err := a.sessions.Backup(prev.ID); err != nil {
			a.logger.Warn("failed to back up session before switching", zap.Error(err))
		}
	}

	wasLocked := a.locked
	a.locked = false
	if err := a.openSession(name); err != nil {
		a.locked = wasLocked
		return err
	}
	if wasLocked {
		if err := a.sessions.UnlockSession(prev.ID); err != nil {
			a.logger.Warn("failed to unlock previous session", zap.Error(err))
		}
	}
	return nil
}

// save writes the transcript and current settings into the session file.
func (a *App) save() error {
	if a.session == nil {
		return nil
	}
	a.session.Messages = a.transcript.Messages()
	a.session.Model = a.modelName
	a.session.ContextLength = a.contextLength
	if err := a.sessions.Save(a.session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
