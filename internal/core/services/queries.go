// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

// BigQuery statements for the workspace table. The only format verb is the
// fully qualified table name; every value is a named query parameter.
// Rows are written with DML rather than the streaming inserter because
// streamed rows cannot be updated while they sit in the streaming buffer.
const (
	// QryCreateWorkspaceTable creates the table on first start.
	QryCreateWorkspaceTable = "CREATE TABLE IF NOT EXISTS `%s` (" +
		"id STRING NOT NULL, name STRING, image_url STRING, form_data STRING, " +
		"video_status STRING, video_task_id STRING, video_url STRING, video_remote_url STRING, " +
		"video_error STRING, video_warning STRING, video_updated_at TIMESTAMP, " +
		"optimization_history ARRAY<STRING>, created_at TIMESTAMP, updated_at TIMESTAMP)"

	QryInsertWorkspace = "INSERT INTO `%s` (id, name, image_url, form_data, video_status, video_task_id, " +
		"video_url, video_remote_url, video_error, video_warning, video_updated_at, optimization_history, created_at, updated_at) " +
		"VALUES (@id, @name, @image_url, @form_data, @video_status, @video_task_id, @video_url, @video_remote_url, " +
		"@video_error, @video_warning, @video_updated_at, @optimization_history, @created_at, @updated_at)"

	QryFindWorkspaceById = "SELECT id, IFNULL(name, '') AS name, IFNULL(image_url, '') AS image_url, " +
		"IFNULL(form_data, '{}') AS form_data, IFNULL(video_status, 'pending') AS video_status, " +
		"IFNULL(video_task_id, '') AS video_task_id, IFNULL(video_url, '') AS video_url, " +
		"IFNULL(video_remote_url, '') AS video_remote_url, IFNULL(video_error, '') AS video_error, " +
		"IFNULL(video_warning, '') AS video_warning, video_updated_at, optimization_history, created_at, updated_at " +
		"FROM `%s` WHERE id = @id LIMIT 1"

	// QrySetVideo is a compare-and-set on the current task id. An empty
	// @expect_task_id writes unconditionally.
	QrySetVideo = "UPDATE `%s` SET video_status = @video_status, video_task_id = @video_task_id, " +
		"video_url = @video_url, video_remote_url = @video_remote_url, video_error = @video_error, " +
		"video_warning = @video_warning, video_updated_at = @video_updated_at, updated_at = CURRENT_TIMESTAMP() " +
		"WHERE id = @id AND (@expect_task_id = '' OR IFNULL(video_task_id, '') = @expect_task_id)"

	QryAppendHistory = "UPDATE `%s` SET optimization_history = ARRAY_CONCAT(IFNULL(optimization_history, []), [@entry]), " +
		"updated_at = CURRENT_TIMESTAMP() WHERE id = @id"

	QryUpdateFormData = "UPDATE `%s` SET form_data = @form_data, updated_at = CURRENT_TIMESTAMP() WHERE id = @id"
)
