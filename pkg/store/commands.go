package store

// Backend command names.
const (
	CmdDetectContainerRuntime = "detect_container_runtime"
	CmdListContainers         = "list_containers"
	CmdCreateContainer        = "create_container"
	CmdStartContainer         = "start_container"
	CmdStopContainer          = "stop_container"
	CmdRemoveContainer        = "remove_container"
	CmdGetContainerLogs       = "get_container_logs"

	CmdGetPHPVersions           = "get_php_versions"
	CmdSwitchPHPVersion         = "switch_php_version"
	CmdInstallPHPVersion        = "install_php_version"
	CmdInstallPHPWithExtensions = "install_php_with_extensions"
	CmdUninstallPHPVersion      = "uninstall_php_version"
	CmdCheckPHPPPA              = "check_php_ppa"
	CmdAddPHPPPA                = "add_php_ppa"
	CmdGetPHPExtensions         = "get_php_extensions"

	CmdListSites             = "list_sites"
	CmdGetSitesConfig        = "get_sites_config"
	CmdGetFrameworkTemplates = "get_framework_templates"
	CmdAddSite               = "add_site"
	CmdRemoveSite            = "remove_site"
	CmdUpdateSitePHP         = "update_site_php"
	CmdCreateProject         = "create_project"
	CmdCloneRepository       = "clone_repository"
	CmdSecureSite            = "secure_site"
	CmdUnsecureSite          = "unsecure_site"
	CmdGetSchedulerStatus    = "get_scheduler_status"
	CmdEnableScheduler       = "enable_scheduler"
	CmdDisableScheduler      = "disable_scheduler"
	CmdGetQueueStatus        = "get_queue_status"
	CmdStartQueueWorker      = "start_queue_worker"
	CmdStopQueueWorker       = "stop_queue_worker"
	CmdGetSchedulerLogs      = "get_scheduler_logs"
	CmdGetQueueLogs          = "get_queue_logs"
	CmdClearSchedulerLogs    = "clear_scheduler_logs"

	CmdDetectSystem = "detect_system"
)
