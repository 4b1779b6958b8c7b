package api

// dashboardHTML is the browser view served at /. It polls the read API and is
// deliberately self-contained: no assets, no build step.
const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
    <title>OptiLink Monitor</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background: #2c3e50; color: white; padding: 20px; margin-bottom: 20px; }
        .metrics { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 20px; }
        .metric-card { border: 1px solid #ddd; padding: 15px; border-radius: 5px; }
        .metric-value { font-size: 2em; font-weight: bold; color: #27ae60; }
        .alert { background: #e74c3c; color: white; padding: 10px; margin: 5px 0; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>OptiLink Monitoring Dashboard</h1>
        <p>Optical link telemetry, anomaly scores and traffic forecasts</p>
    </div>

    <div id="dashboard">
        <p>Loading dashboard...</p>
    </div>

    <script>
        function loadDashboard() {
            fetch('/api/metrics?limit=20')
                .then(response => response.json())
                .then(data => updateDashboard(data.metrics))
                .catch(error => {
                    document.getElementById('dashboard').innerHTML =
                        '<p style="color: red;">Error loading data: ' + error + '</p>';
                });
        }

        function updateDashboard(metrics) {
            if (!metrics || metrics.length === 0) {
                document.getElementById('dashboard').innerHTML =
                    '<p>No metrics available. Make sure the monitoring agent is running.</p>';
                return;
            }

            const sites = {};
            metrics.forEach(metric => {
                if (!sites[metric.site_name]) {
                    sites[metric.site_name] = [];
                }
                sites[metric.site_name].push(metric);
            });

            let html = '<div class="metrics">';

            Object.keys(sites).forEach(siteName => {
                const latest = sites[siteName][0];
                const timestamp = new Date(latest.timestamp * 1000).toLocaleString();

                html += '<div class="metric-card">' +
                    '<h3>' + siteName + '</h3>' +
                    '<div class="metric-value">' + latest.throughput_gbps + ' Gbps</div>' +
                    '<p>Utilization: ' + latest.utilization.toFixed(1) + '%</p>' +
                    '<p>Errors: ' + latest.error_count + '</p>' +
                    '<p>Anomaly Score: ' + latest.anomaly_score.toFixed(3) + '</p>' +
                    '<p>Forecast: ' + latest.forecast_gbps + ' Gbps</p>' +
                    '<small>Last updated: ' + timestamp + '</small>' +
                    (latest.anomaly_score >= 0.8 ? '<div class="alert">ANOMALY DETECTED!</div>' : '') +
                    (latest.utilization >= 90 ? '<div class="alert">HIGH UTILIZATION!</div>' : '') +
                    '</div>';
            });

            html += '</div>';
            document.getElementById('dashboard').innerHTML = html;
        }

        loadDashboard();
        setInterval(loadDashboard, 5000);
    </script>
</body>
</html>
`
