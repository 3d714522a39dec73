package collector

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// localTimeLayout renders operator-local timestamps, e.g.
// "2025-03-14 08:00:00 KST".
const localTimeLayout = "2006-01-02 15:04:05 MST"

// InstanceRecord is the normalized snapshot of one database instance.
// Immutable once produced; optional blocks stay absent rather than
// defaulting to empty values.
type InstanceRecord struct {
	AccountID               string            `json:"account_id"`
	Region                  string            `json:"region"`
	DBInstanceID            string            `json:"db_instance_id"`
	Status                  string            `json:"status"`
	Engine                  string            `json:"engine"`
	EngineVersion           string            `json:"engine_version"`
	InstanceClass           string            `json:"instance_class"`
	MultiAZ                 bool              `json:"multi_az"`
	StorageType             string            `json:"storage_type"`
	AllocatedStorage        int32             `json:"allocated_storage"`
	MaintenanceWindow       string            `json:"maintenance_window"`
	BackupWindow            string            `json:"backup_window"`
	BackupRetentionPeriod   int32             `json:"backup_retention_period"`
	AutoMinorVersionUpgrade bool              `json:"auto_minor_version_upgrade"`
	PendingChanges          *PendingChanges   `json:"pending_changes,omitempty"`
	LatestRestorableTime    string            `json:"latest_restorable_time,omitempty"`
	ServerlessConfig        *ServerlessConfig `json:"serverless_config,omitempty"`
	Tags                    map[string]string `json:"tags"`
	CollectedAt             string            `json:"collected_at"`
}

// PendingChanges captures the subset of pending modifications worth trending.
type PendingChanges struct {
	InstanceClass    string `json:"instance_class,omitempty"`
	EngineVersion    string `json:"engine_version,omitempty"`
	AllocatedStorage int32  `json:"allocated_storage,omitempty"`
	MultiAZ          *bool  `json:"multi_az,omitempty"`
}

// ServerlessConfig holds the capacity-scaling range of an Aurora Serverless
// v2 instance. Present only when the engine is an aurora variant and the
// raw configuration block exists.
type ServerlessConfig struct {
	MinCapacity float64 `json:"min_capacity"`
	MaxCapacity float64 `json:"max_capacity"`
}

// normalizeInstance converts a raw RDS descriptor into an InstanceRecord,
// tagging it with account, region, and the operator-local collection time.
func normalizeInstance(db rdstypes.DBInstance, accountID, region string, now time.Time, loc *time.Location) InstanceRecord {
	rec := InstanceRecord{
		AccountID:               accountID,
		Region:                  region,
		DBInstanceID:            aws.ToString(db.DBInstanceIdentifier),
		Status:                  aws.ToString(db.DBInstanceStatus),
		Engine:                  aws.ToString(db.Engine),
		EngineVersion:           aws.ToString(db.EngineVersion),
		InstanceClass:           aws.ToString(db.DBInstanceClass),
		MultiAZ:                 aws.ToBool(db.MultiAZ),
		StorageType:             aws.ToString(db.StorageType),
		AllocatedStorage:        aws.ToInt32(db.AllocatedStorage),
		MaintenanceWindow:       aws.ToString(db.PreferredMaintenanceWindow),
		BackupWindow:            aws.ToString(db.PreferredBackupWindow),
		BackupRetentionPeriod:   aws.ToInt32(db.BackupRetentionPeriod),
		AutoMinorVersionUpgrade: aws.ToBool(db.AutoMinorVersionUpgrade),
		Tags:                    tagMap(db.TagList),
		CollectedAt:             now.In(loc).Format(localTimeLayout),
	}

	if db.PendingModifiedValues != nil {
		if pending := normalizePending(db.PendingModifiedValues); pending != nil {
			rec.PendingChanges = pending
		}
	}

	if db.LatestRestorableTime != nil {
		rec.LatestRestorableTime = db.LatestRestorableTime.In(loc).Format(localTimeLayout)
	}

	// The capacity-scaling block applies only to the auto-scaling engine
	// variants; for anything else the field stays absent.
	if strings.HasPrefix(rec.Engine, "aurora") && db.ServerlessV2ScalingConfiguration != nil {
		rec.ServerlessConfig = &ServerlessConfig{
			MinCapacity: aws.ToFloat64(db.ServerlessV2ScalingConfiguration.MinCapacity),
			MaxCapacity: aws.ToFloat64(db.ServerlessV2ScalingConfiguration.MaxCapacity),
		}
	}

	return rec
}

func normalizePending(pmv *rdstypes.PendingModifiedValues) *PendingChanges {
	pending := &PendingChanges{
		InstanceClass:    aws.ToString(pmv.DBInstanceClass),
		EngineVersion:    aws.ToString(pmv.EngineVersion),
		AllocatedStorage: aws.ToInt32(pmv.AllocatedStorage),
		MultiAZ:          pmv.MultiAZ,
	}
	if pending.InstanceClass == "" && pending.EngineVersion == "" &&
		pending.AllocatedStorage == 0 && pending.MultiAZ == nil {
		return nil
	}
	return pending
}

func tagMap(tags []rdstypes.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return m
}
