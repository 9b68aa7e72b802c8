package v1

import "net/http"

func Web() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `
<!DOCTYPE html>
<html>
<head>
    <title>Signed Upload</title>
    <style>
        form {
            margin: 20px;
        }
        .form-group {
            margin-bottom: 10px;
        }
    </style>
</head>
<body>
    <form id="uploadForm" onsubmit="uploadFile(event)">
        <div class="form-group">
            <label for="fileInput">Select file:</label>
            <input type="file" id="fileInput" name="file" required>
        </div>
        <div class="form-group">
            <input type="submit" value="Upload File">
        </div>
    </form>
    <div class="form-group">
        <a id="signedUrl" target="_blank"></a>
    </div>

    <script>
    function uploadFile(event) {
        event.preventDefault();

        const fileInput = document.getElementById('fileInput');
        const file = fileInput.files[0];

        if (!file) {
            alert('Please select a file first');
            return;
        }

        const data = new FormData();
        data.append('file', file);

        fetch('/api/v1/upload', {
            method: 'POST',
            body: data
        })
        .then(response => response.json().then(body => ({ ok: response.ok, body })))
        .then(({ ok, body }) => {
            if (!ok) {
                alert('Upload failed: ' + body.message);
                return;
            }
            document.getElementById('uploadForm').reset();
            const link = document.getElementById('signedUrl');
            if (body.url) {
                link.href = body.url;
                link.textContent = body.url;
            } else {
                link.removeAttribute('href');
                link.textContent = 'File uploaded successfully';
            }
        })
        .catch(error => {
            console.error('Error:', error);
            alert('Upload failed');
        });
    }
    </script>
</body>
</html>`

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	}
}
