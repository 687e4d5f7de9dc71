package disasters

import (
	"context"
	"fmt"
	"strings"

	"github.com/ngmaloney/disaster-terminal/internal/awserr"
	"github.com/ngmaloney/disaster-terminal/internal/logging"
	"github.com/ngmaloney/disaster-terminal/internal/models"
)

// probeSampleSize is how many keys the read check lists
const probeSampleSize = 5

// TestConnection checks credentials, bucket existence and read permission
// in that order and explains the first failure. It never returns an error;
// problems are reported in the status.
func (s *Service) TestConnection(ctx context.Context) models.ConnectionStatus {
	status := models.ConnectionStatus{
		Bucket:    s.store.Bucket(),
		Region:    s.store.Region(),
		CheckedAt: s.now(),
	}
	log := s.logger.WithFields(logging.Fields{"bucket": status.Bucket, "region": status.Region})

	if missing := s.missingCredentials(); len(missing) > 0 {
		status.Error = fmt.Sprintf("AWS credentials not configured: set %s", strings.Join(missing, " and "))
		log.Warn(status.Error)
		s.recordProbe("not_configured")
		return status
	}

	if err := s.store.HeadBucket(ctx); err != nil {
		kind := s.explain(&status, err)
		log.WithError(err).Warn("Bucket check failed")
		s.recordProbe(kind.String())
		return status
	}
	status.BucketExists = true
	status.CredentialsValid = true

	objs, err := s.store.SampleKeys(ctx, probeSampleSize)
	if err != nil {
		kind := s.explain(&status, err)
		log.WithError(err).Warn("Read check failed")
		s.recordProbe(kind.String())
		return status
	}
	status.HasReadPermission = true
	status.Connected = true
	status.ObjectCount = len(objs)

	log.WithField("objects", status.ObjectCount).Info("S3 connection OK")
	s.recordProbe("connected")
	return status
}

func (s *Service) missingCredentials() []string {
	var missing []string
	if strings.TrimSpace(s.opts.AccessKeyID) == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(s.opts.SecretAccessKey) == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	return missing
}

// explain fills the status flags and message for a failed step
func (s *Service) explain(status *models.ConnectionStatus, err error) awserr.Kind {
	ce := awserr.Classify(awserr.ServiceS3, "", err)

	switch ce.Kind {
	case awserr.KindTransport:
		status.CORSIssue = true
		status.Error = fmt.Sprintf("Network or CORS issue reaching bucket '%s': the request got no response. %s",
			status.Bucket, ce.Remediation())
	case awserr.KindAuthorization:
		if ce.InvalidCredentials {
			status.CredentialsValid = false
			status.Error = fmt.Sprintf("Invalid AWS credentials (%s). %s", ce.Code, ce.Remediation())
			return ce.Kind
		}
		status.CredentialsValid = true
		status.HasReadPermission = false
		status.Error = fmt.Sprintf("Access denied to bucket '%s'. %s", status.Bucket, ce.Remediation())
	case awserr.KindNotFound:
		status.CredentialsValid = true
		status.BucketExists = false
		status.Error = fmt.Sprintf("Bucket '%s' does not exist in region %s. %s", status.Bucket, status.Region, ce.Remediation())
	case awserr.KindConfiguration:
		status.Error = ce.Error()
	default:
		status.Error = fmt.Sprintf("Connection failed: %s", ce.Message)
	}
	return ce.Kind
}

func (s *Service) recordProbe(outcome string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.ProbeFinished(outcome)
	}
}
