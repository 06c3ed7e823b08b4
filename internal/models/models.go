package models

// All enumerates every persisted model for migration.
var All = []interface{}{
	&Run{},
	&DeviceTask{},
	&RunDeviceState{},
	&RunStep{},
	&CallbackEvent{},
	&Artifact{},
	&NodeHeartbeat{},
	&Video{},
	&Playbook{},
	&Workflow{},
	&ScanJob{},
}
