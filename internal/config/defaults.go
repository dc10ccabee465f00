package config

const (
	defaultStateDir            = "~/.local/share/formcoach"
	defaultLogDir              = "~/.local/share/formcoach/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultQueueCapacity       = 8
	defaultMaxSkewMS           = 40
	defaultSyncTimeoutMS       = 200
	defaultCameraLostTimeout   = 5
	defaultConfidenceThreshold = 0.5
	defaultSmoothingFactor     = 0.6
	defaultOcclusionDecay      = 0.8
	defaultMaxOcclusion        = 3
	defaultVelocityWindow      = 3
	defaultPoseTimeoutMS       = 250
	defaultPauseTimeout        = 10
	defaultFeedbackLanguage    = "en"
	defaultFeedbackCooldown    = 5
	defaultFeedbackQueueSize   = 16
	defaultFeedbackTimeout     = 10
	defaultCameraPollMS        = 66
	defaultCameraTimeoutMS     = 500
)

// identityAffine maps image coordinates straight into rig coordinates.
func identityAffine() []float64 {
	return []float64{1, 0, 0, 0, 1, 0}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		CameraA: Camera{
			ID:             "front",
			PollIntervalMS: defaultCameraPollMS,
			TimeoutMS:      defaultCameraTimeoutMS,
			Affine:         identityAffine(),
		},
		CameraB: Camera{
			ID:             "side",
			PollIntervalMS: defaultCameraPollMS,
			TimeoutMS:      defaultCameraTimeoutMS,
			Affine:         identityAffine(),
		},
		Sync: Sync{
			QueueCapacity:     defaultQueueCapacity,
			MaxSkewMS:         defaultMaxSkewMS,
			SyncTimeoutMS:     defaultSyncTimeoutMS,
			CameraLostTimeout: defaultCameraLostTimeout,
		},
		Fusion: Fusion{
			ConfidenceThreshold:  defaultConfidenceThreshold,
			SmoothingFactor:      defaultSmoothingFactor,
			OcclusionDecay:       defaultOcclusionDecay,
			MaxOcclusionDuration: defaultMaxOcclusion,
		},
		Angles: Angles{
			VelocityWindow: defaultVelocityWindow,
		},
		Pose: Pose{
			TimeoutMS: defaultPoseTimeoutMS,
		},
		Session: Session{
			PauseTimeout: defaultPauseTimeout,
		},
		Feedback: Feedback{
			Language:       defaultFeedbackLanguage,
			CooldownSec:    defaultFeedbackCooldown,
			QueueSize:      defaultFeedbackQueueSize,
			RequestTimeout: defaultFeedbackTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
